// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keycred models the machine principal: a Key is minted under an
// Owner's primary key and forms an immutable lineage tree via
// parent_key_id/initial_author_key_id.
package keycred

import (
	"context"
	"errors"
	"time"
)

// Type enumerates the three Key kinds.
type Type string

// Key types.
const (
	TypePrimary   Type = "primary"
	TypeSecondary Type = "secondary"
	TypeUse       Type = "use"
)

// Domain errors.
var (
	ErrNotFound       = errors.New("key not found")
	ErrAlreadyRetired = errors.New("key already retired")
)

// Key is a machine principal authenticated on the Gateway surface by an
// opaque secret, or exchanged for a bearer token.
//
// Purpose: Root (primary) or derived (secondary/use) credential in a Key
// lineage tree.
// Domain: Credentialing
// Invariants:
//   - Primary: ParentKeyID == IssuedByKeyID == "" and InitialAuthorKeyID == ID
//     and OwnerID != "".
//   - Secondary/Use: ParentKeyID, IssuedByKeyID, InitialAuthorKeyID all
//     non-empty; OwnerID == "".
//   - Permissions never mutate after insert; rotation replaces the row.
//   - Use keys never carry posts:create or keys:issue in Permissions.
//   - RotatedToID != "" implies Active == false and RetiredAt set.
type Key struct {
	ID                  string
	OwnerID             string
	Type                Type
	KeySecretHash       string
	Permissions         []string
	Active              bool
	IssuedByKeyID       string
	ParentKeyID         string
	InitialAuthorKeyID  string
	RotatedFromID       string
	RotatedToID         string
	RetiredAt           *time.Time
	UseCountLimit       *int // nil = unlimited; 0 is a valid explicit "never usable" value
	UseCountCurrent     int
	DeviceLimit         *int // nil = unlimited
	Label               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsRetired reports whether the key has reached its terminal state.
func (k *Key) IsRetired() bool {
	return k.RetiredAt != nil
}

// IsUsable reports whether the key may currently authenticate.
func (k *Key) IsUsable() bool {
	return k.Active && !k.IsRetired()
}

// PublicID is the 1:1 side table binding an "apub_..." external string to
// a Key's internal id. Never reused; inserted atomically with its Key row.
type PublicID struct {
	PublicID string
	KeyID    string
}

// DeviceFingerprint is a registered (ip, user_agent) digest for a Use key
// enforcing device_limit.
type DeviceFingerprint struct {
	KeyID       string
	Fingerprint [32]byte
	CreatedAt   time.Time
}

// Repository defines persistence for Keys and their public ids.
//
// Purpose: Abstraction for single-row key reads/updates. Multi-row
// transactional operations (mint, rotate) live on TransactionalRepository.
// Domain: Credentialing
type Repository interface {
	GetByID(ctx context.Context, id string) (*Key, error)
	GetByPublicID(ctx context.Context, publicID string) (*Key, error)
	ListChildren(ctx context.Context, parentKeyID string) ([]*Key, error)

	// UpdateActive sets the key's active flag and reports whether the
	// stored value actually changed, so repeated calls with the same
	// target state can be counted as no-ops by callers.
	UpdateActive(ctx context.Context, id string, active bool) (bool, error)

	// IncrementUseCount bumps use_count_current by one, registering the
	// device fingerprint in the same transaction when fp is non-nil and
	// not already present. Returns the post-increment count.
	IncrementUseCount(ctx context.Context, keyID string, fp *[32]byte) (int, error)

	// CountDistinctFingerprints returns the number of distinct device
	// fingerprints registered against keyID.
	CountDistinctFingerprints(ctx context.Context, keyID string) (int, error)

	// HasFingerprint reports whether fp is already registered for keyID.
	HasFingerprint(ctx context.Context, keyID string, fp [32]byte) (bool, error)
}

// TransactionalRepository exposes the multi-table atomic operations that
// mint and rotate keys, per spec §4.5.
type TransactionalRepository interface {
	CreatePrimaryKey(ctx context.Context, key *Key, publicID *PublicID) error
	CreateChildKey(ctx context.Context, key *Key, publicID *PublicID) error
	RotateKey(ctx context.Context, newKey *Key, newPublicID *PublicID, oldKeyID string) error
}
