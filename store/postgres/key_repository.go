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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/postcore/keycred"
)

const keyColumns = `
	id, owner_id, type, key_secret_hash, permissions, active,
	issued_by_key_id, parent_key_id, initial_author_key_id,
	rotated_from_id, rotated_to_id, retired_at,
	use_count_limit, use_count_current, device_limit, label,
	created_at, updated_at
`

// KeyRepository implements keycred.Repository and keycred.TransactionalRepository.
//
// Purpose: PostgreSQL persistence for the Key lineage tree.
// Domain: Credentialing (Infrastructure)
type KeyRepository struct {
	db *DB
}

// NewKeyRepository creates a new key repository.
func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

func scanKey(row pgx.Row) (*keycred.Key, error) {
	var k keycred.Key
	var ownerID, issuedBy, parentKeyID, rotatedFrom, rotatedTo *string
	err := row.Scan(
		&k.ID, &ownerID, &k.Type, &k.KeySecretHash, &k.Permissions, &k.Active,
		&issuedBy, &parentKeyID, &k.InitialAuthorKeyID,
		&rotatedFrom, &rotatedTo, &k.RetiredAt,
		&k.UseCountLimit, &k.UseCountCurrent, &k.DeviceLimit, &k.Label,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ownerID != nil {
		k.OwnerID = *ownerID
	}
	if issuedBy != nil {
		k.IssuedByKeyID = *issuedBy
	}
	if parentKeyID != nil {
		k.ParentKeyID = *parentKeyID
	}
	if rotatedFrom != nil {
		k.RotatedFromID = *rotatedFrom
	}
	if rotatedTo != nil {
		k.RotatedToID = *rotatedTo
	}
	return &k, nil
}

// GetByID retrieves a key by its internal id.
func (r *KeyRepository) GetByID(ctx context.Context, id string) (*keycred.Key, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM keys WHERE id = $1`, id)
	k, err := scanKey(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, keycred.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return k, nil
}

// GetByPublicID retrieves a key by its external "apub_..." public id.
func (r *KeyRepository) GetByPublicID(ctx context.Context, publicID string) (*keycred.Key, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT k.id, k.owner_id, k.type, k.key_secret_hash, k.permissions, k.active,
			k.issued_by_key_id, k.parent_key_id, k.initial_author_key_id,
			k.rotated_from_id, k.rotated_to_id, k.retired_at,
			k.use_count_limit, k.use_count_current, k.device_limit, k.label,
			k.created_at, k.updated_at
		FROM keys k
		JOIN key_public_ids p ON p.key_id = k.id
		WHERE p.public_id = $1
	`, publicID)
	k, err := scanKey(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, keycred.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key by public id: %w", err)
	}
	return k, nil
}

// ListChildren returns every key whose parent_key_id is parentKeyID.
func (r *KeyRepository) ListChildren(ctx context.Context, parentKeyID string) ([]*keycred.Key, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+keyColumns+` FROM keys WHERE parent_key_id = $1`, parentKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var out []*keycred.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// UpdateActive sets a key's active flag, reporting whether the stored
// value actually changed. The WHERE clause only matches rows whose active
// flag differs from the target, so a repeated call with the same target
// state is a true no-op rather than an unconditional rewrite.
func (r *KeyRepository) UpdateActive(ctx context.Context, id string, active bool) (bool, error) {
	var changed bool
	err := r.db.pool.QueryRow(ctx, `
		UPDATE keys SET active = $2, updated_at = now()
		WHERE id = $1 AND active != $2
		RETURNING true
	`, id, active).Scan(&changed)
	if err == nil {
		return changed, nil
	}
	if err != pgx.ErrNoRows {
		return false, fmt.Errorf("failed to update key active state: %w", err)
	}

	var exists bool
	if err := r.db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM keys WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	if !exists {
		return false, keycred.ErrNotFound
	}
	return false, nil
}

// IncrementUseCount bumps use_count_current by one, registering fp in the
// same transaction when non-nil and not already present.
func (r *KeyRepository) IncrementUseCount(ctx context.Context, keyID string, fp *[32]byte) (int, error) {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, `
		UPDATE keys SET use_count_current = use_count_current + 1, updated_at = now()
		WHERE id = $1
		RETURNING use_count_current
	`, keyID).Scan(&count); err != nil {
		if err == pgx.ErrNoRows {
			return 0, keycred.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment use count: %w", err)
	}

	if fp != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO key_device_fingerprints (key_id, fingerprint)
			VALUES ($1, $2)
			ON CONFLICT (key_id, fingerprint) DO NOTHING
		`, keyID, fp[:]); err != nil {
			return 0, fmt.Errorf("failed to register device fingerprint: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit use count increment: %w", err)
	}
	return count, nil
}

// CountDistinctFingerprints returns the number of distinct device
// fingerprints registered against keyID.
func (r *KeyRepository) CountDistinctFingerprints(ctx context.Context, keyID string) (int, error) {
	var count int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM key_device_fingerprints WHERE key_id = $1
	`, keyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count device fingerprints: %w", err)
	}
	return count, nil
}

// HasFingerprint reports whether fp is already registered for keyID.
func (r *KeyRepository) HasFingerprint(ctx context.Context, keyID string, fp [32]byte) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM key_device_fingerprints WHERE key_id = $1 AND fingerprint = $2)
	`, keyID, fp[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device fingerprint: %w", err)
	}
	return exists, nil
}

// CreatePrimaryKey inserts a primary key row and its public id atomically.
func (r *KeyRepository) CreatePrimaryKey(ctx context.Context, key *keycred.Key, publicID *keycred.PublicID) error {
	return r.insertKeyAndPublicID(ctx, key, publicID)
}

// CreateChildKey inserts a secondary or use key row and its public id atomically.
func (r *KeyRepository) CreateChildKey(ctx context.Context, key *keycred.Key, publicID *keycred.PublicID) error {
	return r.insertKeyAndPublicID(ctx, key, publicID)
}

func (r *KeyRepository) insertKeyAndPublicID(ctx context.Context, key *keycred.Key, publicID *keycred.PublicID) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertKeyRow(ctx, tx, key); err != nil {
		return err
	}
	if err := insertPublicIDRow(ctx, tx, publicID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit key mint: %w", err)
	}
	return nil
}

// RotateKey inserts newKey/newPublicID and marks oldKeyID rotated/retired,
// all within one transaction.
func (r *KeyRepository) RotateKey(ctx context.Context, newKey *keycred.Key, newPublicID *keycred.PublicID, oldKeyID string) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertKeyRow(ctx, tx, newKey); err != nil {
		return err
	}
	if err := insertPublicIDRow(ctx, tx, newPublicID); err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		UPDATE keys SET active = false, rotated_to_id = $2, retired_at = now(), updated_at = now()
		WHERE id = $1
	`, oldKeyID, newKey.ID)
	if err != nil {
		return fmt.Errorf("failed to retire rotated-from key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return keycred.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit key rotation: %w", err)
	}
	return nil
}

func insertKeyRow(ctx context.Context, tx pgx.Tx, key *keycred.Key) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO keys (
			id, owner_id, type, key_secret_hash, permissions, active,
			issued_by_key_id, parent_key_id, initial_author_key_id,
			rotated_from_id, rotated_to_id, retired_at,
			use_count_limit, use_count_current, device_limit, label
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`,
		key.ID, nullString(key.OwnerID), key.Type, key.KeySecretHash, key.Permissions, key.Active,
		nullString(key.IssuedByKeyID), nullString(key.ParentKeyID), key.InitialAuthorKeyID,
		nullString(key.RotatedFromID), nullString(key.RotatedToID), key.RetiredAt,
		key.UseCountLimit, key.UseCountCurrent, key.DeviceLimit, key.Label,
	)
	if err != nil {
		return fmt.Errorf("failed to insert key: %w", err)
	}
	return nil
}

func insertPublicIDRow(ctx context.Context, tx pgx.Tx, publicID *keycred.PublicID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO key_public_ids (public_id, key_id) VALUES ($1, $2)
	`, publicID.PublicID, publicID.KeyID)
	if err != nil {
		return fmt.Errorf("failed to insert key public id: %w", err)
	}
	return nil
}

// nullString converts an empty string into a nil driver value, matching
// the nullable foreign-key columns on keys.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
