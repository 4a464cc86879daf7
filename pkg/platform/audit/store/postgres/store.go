package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"agentledger/pkg/domain"
	audit "agentledger/pkg/platform/audit"
	"agentledger/pkg/platform/tx"
)

// Store persists audit events in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE audit_events (
//	    id         BIGSERIAL PRIMARY KEY,
//	    category   TEXT        NOT NULL,
//	    occurred   TIMESTAMPTZ NOT NULL,
//	    actor      TEXT        NOT NULL,
//	    agent_id   BIGINT      NOT NULL DEFAULT 0,
//	    job_id     BIGINT      NOT NULL DEFAULT 0,
//	    action     TEXT        NOT NULL,
//	    reason     TEXT        NOT NULL DEFAULT '',
//	    proof_hash TEXT        NOT NULL DEFAULT '',
//	    request_id TEXT        NOT NULL DEFAULT ''
//	);
//	CREATE INDEX audit_events_agent_idx ON audit_events (agent_id, id);
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	q := tx.QuerierFor(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_events (category, occurred, actor, agent_id, job_id, action, reason, proof_hash, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(event.Category), event.Timestamp, event.Actor.String(),
		int64(event.AgentID), int64(event.JobID), event.Action,
		event.Reason, event.ProofHash, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAgent(ctx context.Context, agentID domain.AgentID) ([]audit.Event, error) {
	q := tx.QuerierFor(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT category, occurred, actor, agent_id, job_id, action, reason, proof_hash, request_id
		FROM audit_events WHERE agent_id = $1 ORDER BY id`,
		int64(agentID),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e     audit.Event
			cat   string
			actor string
			aid   int64
			jid   int64
		)
		if err := rows.Scan(&cat, &e.Timestamp, &actor, &aid, &jid, &e.Action, &e.Reason, &e.ProofHash, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(cat)
		e.Actor = domain.Principal(actor)
		e.AgentID = domain.AgentID(aid)
		e.JobID = domain.JobID(jid)
		events = append(events, e)
	}
	return events, rows.Err()
}
