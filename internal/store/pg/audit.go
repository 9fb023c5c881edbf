package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"cleanops.io/internal/audit"
)

const auditColumns = `id, action, entity_type, entity_id, actor_id, changes, ip_address, created_at`

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, action, entity_type, entity_id, actor_id, changes, ip_address, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, string(entry.Action), entry.EntityType, nullIfEmpty(entry.EntityID),
		entry.ActorID, changes, nullIfEmpty(entry.IPAddress), entry.CreatedAt)
	return err
}

func (s *Store) ByEntity(ctx context.Context, entityType, entityID string, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from audit_log
		where entity_type = $1 and entity_id = $2
		order by created_at desc
		limit $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *Store) ByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from audit_log
		where actor_id = $1
		order by created_at desc
		limit $2
	`, actorID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from audit_log
		order by created_at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]audit.Entry, error) {
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			entry    audit.Entry
			action   string
			entityID sql.NullString
			ip       sql.NullString
			changes  []byte
		)
		if err := rows.Scan(&entry.ID, &action, &entry.EntityType, &entityID,
			&entry.ActorID, &changes, &ip, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Action = audit.Action(action)
		if entityID.Valid {
			entry.EntityID = entityID.String
		}
		if ip.Valid {
			entry.IPAddress = ip.String
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &entry.Changes); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
