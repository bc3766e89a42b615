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
	"encoding/json"
	"fmt"

	"github.com/opentrusty/postcore/audit"
	"github.com/opentrusty/postcore/id"
)

// AuditRepository implements audit.Repository.
//
// Purpose: Append-only PostgreSQL persistence for audit events. No
// update or delete path is exposed, matching audit.Repository's contract.
// Domain: Audit (Infrastructure)
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert persists a sanitized audit event.
func (r *AuditRepository) Insert(ctx context.Context, e audit.Event) error {
	eventID := e.ID
	if eventID == "" {
		eventID = id.Fresh().External()
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event metadata: %w", err)
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO audit_events (
			id, actor_kind, actor_id, action, subject_kind, subject_id, metadata, ip, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		eventID, e.ActorKind, e.ActorID, e.Action,
		nullString(e.SubjectKind), nullString(e.SubjectID), metadata,
		nullString(e.IP), nullString(e.UserAgent), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// listFilter narrows a List query; zero values are unfiltered.
type listFilter struct {
	ActorID string
	Action  string
	Limit   int
	Offset  int
}

// List retrieves audit events for operator review, most recent first,
// tie-broken by id for stable pagination.
func (r *AuditRepository) List(ctx context.Context, f listFilter) ([]audit.Event, error) {
	query := `
		SELECT id, actor_kind, actor_id, action, COALESCE(subject_kind, ''), COALESCE(subject_id, ''),
			metadata, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		FROM audit_events
		WHERE ($1 = '' OR actor_id = $1) AND ($2 = '' OR action = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.pool.Query(ctx, query, f.ActorID, f.Action, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var metadata []byte
		if err := rows.Scan(
			&e.ID, &e.ActorKind, &e.ActorID, &e.Action, &e.SubjectKind, &e.SubjectID,
			&metadata, &e.IP, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit event metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
