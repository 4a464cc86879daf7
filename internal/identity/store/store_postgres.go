package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"agentledger/internal/identity/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/platform/tx"
)

// Postgres is the production Store.
//
// Schema:
//
//	CREATE TABLE identities (
//	    id               BIGSERIAL PRIMARY KEY,
//	    controller       TEXT        NOT NULL UNIQUE,
//	    linked_resume_id BIGINT      NOT NULL DEFAULT 0,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE identity_metadata (
//	    agent_id  BIGINT NOT NULL REFERENCES identities (id),
//	    position  INT    NOT NULL,
//	    key       TEXT   NOT NULL,
//	    value     BYTEA  NOT NULL,
//	    PRIMARY KEY (agent_id, key)
//	);
//	CREATE INDEX identity_metadata_order_idx ON identity_metadata (agent_id, position);
//
// Update expects to run inside a caller-provided transaction via
// pkg/platform/tx so the row lock and the metadata writes commit together.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const pgUniqueViolation = "23505"

func (s *Postgres) Create(ctx context.Context, identity *models.Identity) error {
	q := tx.QuerierFor(ctx, s.db)

	err := q.QueryRowContext(ctx, `
		INSERT INTO identities (controller, linked_resume_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		identity.Controller.String(), int64(identity.LinkedResumeID),
		identity.CreatedAt, identity.UpdatedAt,
	).Scan(&identity.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}

	if err := s.writeMetadata(ctx, q, identity); err != nil {
		return err
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, agentID domain.AgentID) (*models.Identity, error) {
	q := tx.QuerierFor(ctx, s.db)
	return s.load(ctx, q, agentID, false)
}

func (s *Postgres) RegisteredID(ctx context.Context, principal domain.Principal) (domain.AgentID, error) {
	q := tx.QuerierFor(ctx, s.db)

	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM identities WHERE controller = $1`,
		principal.String(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find controller: %w", err)
	}
	return domain.AgentID(id), nil
}

func (s *Postgres) Update(ctx context.Context, agentID domain.AgentID, validate func(*models.Identity) error, apply func(*models.Identity)) error {
	q := tx.QuerierFor(ctx, s.db)

	identity, err := s.load(ctx, q, agentID, true)
	if err != nil {
		return err
	}
	if err := validate(identity); err != nil {
		return err
	}
	apply(identity)

	if _, err := q.ExecContext(ctx, `
		UPDATE identities SET controller = $2, linked_resume_id = $3, updated_at = $4
		WHERE id = $1`,
		int64(identity.ID), identity.Controller.String(),
		int64(identity.LinkedResumeID), identity.UpdatedAt,
	); err != nil {
		// A transfer to a principal who already controls an identity trips
		// the controller uniqueness constraint.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update identity: %w", err)
	}
	return s.writeMetadata(ctx, q, identity)
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	q := tx.QuerierFor(ctx, s.db)

	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func (s *Postgres) load(ctx context.Context, q tx.Querier, agentID domain.AgentID, forUpdate bool) (*models.Identity, error) {
	query := `
		SELECT id, controller, linked_resume_id, created_at, updated_at
		FROM identities WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		identity   models.Identity
		id         int64
		controller string
		resumeID   int64
	)
	err := q.QueryRowContext(ctx, query, int64(agentID)).
		Scan(&id, &controller, &resumeID, &identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	identity.ID = domain.AgentID(id)
	identity.Controller = domain.Principal(controller)
	identity.LinkedResumeID = domain.ResumeID(resumeID)
	identity.Metadata = make(map[string][]byte)

	rows, err := q.QueryContext(ctx, `
		SELECT key, value FROM identity_metadata
		WHERE agent_id = $1 ORDER BY position`,
		int64(agentID),
	)
	if err != nil {
		return nil, fmt.Errorf("load identity metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan identity metadata: %w", err)
		}
		identity.MetadataKeys = append(identity.MetadataKeys, key)
		identity.Metadata[key] = value
	}
	return &identity, rows.Err()
}

func (s *Postgres) writeMetadata(ctx context.Context, q tx.Querier, identity *models.Identity) error {
	for position, key := range identity.MetadataKeys {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO identity_metadata (agent_id, position, key, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (agent_id, key) DO UPDATE SET value = EXCLUDED.value`,
			int64(identity.ID), position, key, identity.Metadata[key],
		); err != nil {
			return fmt.Errorf("write identity metadata: %w", err)
		}
	}
	return nil
}
