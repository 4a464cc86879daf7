package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"agentledger/internal/verification/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/platform/tx"
)

// Postgres is the production Store.
//
// Schema:
//
//	CREATE TABLE verifiers (
//	    id        BIGSERIAL PRIMARY KEY,
//	    principal TEXT NOT NULL UNIQUE
//	);
//
//	CREATE TABLE attestations (
//	    id         BIGSERIAL PRIMARY KEY,
//	    agent_id   BIGINT      NOT NULL,
//	    job_id     BIGINT      NOT NULL,
//	    verifier   TEXT        NOT NULL,
//	    success    BOOLEAN     NOT NULL,
//	    proof_hash TEXT        NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX attestations_agent_idx ON attestations (agent_id, id);
//
//	CREATE TABLE validation_requests (
//	    request_hash  TEXT PRIMARY KEY,
//	    requester     TEXT        NOT NULL,
//	    validator     TEXT        NOT NULL,
//	    agent_id      BIGINT      NOT NULL DEFAULT 0,
//	    request_uri   TEXT        NOT NULL,
//	    status        TEXT        NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    response_value SMALLINT,
//	    response_uri   TEXT,
//	    response_hash  TEXT,
//	    response_tag   TEXT,
//	    responder      TEXT,
//	    responded_at   TIMESTAMPTZ
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *Postgres) AddVerifier(ctx context.Context, verifier domain.Principal) error {
	q := tx.QuerierFor(ctx, s.db)

	_, err := q.ExecContext(ctx,
		`INSERT INTO verifiers (principal) VALUES ($1)`,
		verifier.String(),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("add verifier: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveVerifier(ctx context.Context, verifier domain.Principal) error {
	q := tx.QuerierFor(ctx, s.db)

	result, err := q.ExecContext(ctx,
		`DELETE FROM verifiers WHERE principal = $1`,
		verifier.String(),
	)
	if err != nil {
		return fmt.Errorf("remove verifier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove verifier: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) IsVerifier(ctx context.Context, principal domain.Principal) (bool, error) {
	q := tx.QuerierFor(ctx, s.db)

	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verifiers WHERE principal = $1)`,
		principal.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check verifier: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Verifiers(ctx context.Context) ([]domain.Principal, error) {
	q := tx.QuerierFor(ctx, s.db)

	rows, err := q.QueryContext(ctx, `SELECT principal FROM verifiers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list verifiers: %w", err)
	}
	defer rows.Close()

	verifiers := []domain.Principal{}
	for rows.Next() {
		var principal string
		if err := rows.Scan(&principal); err != nil {
			return nil, fmt.Errorf("scan verifier: %w", err)
		}
		verifiers = append(verifiers, domain.Principal(principal))
	}
	return verifiers, rows.Err()
}

func (s *Postgres) RecordAttestation(ctx context.Context, attestation *models.Attestation) error {
	q := tx.QuerierFor(ctx, s.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO attestations (agent_id, job_id, verifier, success, proof_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(attestation.AgentID), int64(attestation.JobID), attestation.Verifier.String(),
		attestation.Success, attestation.ProofHash.String(), attestation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record attestation: %w", err)
	}
	return nil
}

func (s *Postgres) Attestations(ctx context.Context, agentID domain.AgentID) ([]models.Attestation, error) {
	q := tx.QuerierFor(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT agent_id, job_id, verifier, success, proof_hash, created_at
		FROM attestations WHERE agent_id = $1 ORDER BY id`,
		int64(agentID),
	)
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()

	var attestations []models.Attestation
	for rows.Next() {
		var (
			a         models.Attestation
			aid, jid  int64
			verifier  string
			proofHash string
		)
		if err := rows.Scan(&aid, &jid, &verifier, &a.Success, &proofHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		a.AgentID = domain.AgentID(aid)
		a.JobID = domain.JobID(jid)
		a.Verifier = domain.Principal(verifier)
		if proofHash != "" {
			digest, err := domain.ParseDigest(proofHash)
			if err != nil {
				return nil, fmt.Errorf("scan attestation: %w", err)
			}
			a.ProofHash = digest
		}
		attestations = append(attestations, a)
	}
	return attestations, rows.Err()
}

func (s *Postgres) CreateValidationRequest(ctx context.Context, request *models.ValidationRequest) error {
	q := tx.QuerierFor(ctx, s.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO validation_requests (request_hash, requester, validator, agent_id, request_uri, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		request.RequestHash.String(), request.Requester.String(), request.Validator.String(),
		int64(request.AgentID), request.RequestURI, string(request.Status), request.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("create validation request: %w", err)
	}
	return nil
}

func (s *Postgres) FindValidationRequest(ctx context.Context, requestHash domain.Digest) (*models.ValidationRequest, error) {
	q := tx.QuerierFor(ctx, s.db)
	return s.loadRequest(ctx, q, requestHash, false)
}

func (s *Postgres) UpdateValidationRequest(ctx context.Context, requestHash domain.Digest, validate func(*models.ValidationRequest) error, apply func(*models.ValidationRequest)) error {
	q := tx.QuerierFor(ctx, s.db)

	request, err := s.loadRequest(ctx, q, requestHash, true)
	if err != nil {
		return err
	}
	if err := validate(request); err != nil {
		return err
	}
	apply(request)

	var (
		value        sql.NullInt16
		responseURI  sql.NullString
		responseHash sql.NullString
		tag          sql.NullString
		responder    sql.NullString
		respondedAt  sql.NullTime
	)
	if request.Response != nil {
		value = sql.NullInt16{Int16: int16(request.Response.Value), Valid: true}
		responseURI = sql.NullString{String: request.Response.ResponseURI, Valid: true}
		responseHash = sql.NullString{String: request.Response.ResponseHash.String(), Valid: true}
		tag = sql.NullString{String: request.Response.Tag, Valid: true}
		responder = sql.NullString{String: request.Response.Responder.String(), Valid: true}
		respondedAt = sql.NullTime{Time: request.Response.RespondedAt, Valid: true}
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE validation_requests
		SET status = $2, response_value = $3, response_uri = $4, response_hash = $5,
		    response_tag = $6, responder = $7, responded_at = $8
		WHERE request_hash = $1`,
		request.RequestHash.String(), string(request.Status),
		value, responseURI, responseHash, tag, responder, respondedAt,
	); err != nil {
		return fmt.Errorf("update validation request: %w", err)
	}
	return nil
}

func (s *Postgres) loadRequest(ctx context.Context, q tx.Querier, requestHash domain.Digest, forUpdate bool) (*models.ValidationRequest, error) {
	query := `
		SELECT request_hash, requester, validator, agent_id, request_uri, status, created_at,
		       response_value, response_uri, response_hash, response_tag, responder, responded_at
		FROM validation_requests WHERE request_hash = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		r            models.ValidationRequest
		hash         string
		requester    string
		validator    string
		agentID      int64
		status       string
		value        sql.NullInt16
		responseURI  sql.NullString
		responseHash sql.NullString
		tag          sql.NullString
		responder    sql.NullString
		respondedAt  sql.NullTime
	)
	err := q.QueryRowContext(ctx, query, requestHash.String()).Scan(
		&hash, &requester, &validator, &agentID, &r.RequestURI, &status, &r.CreatedAt,
		&value, &responseURI, &responseHash, &tag, &responder, &respondedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load validation request: %w", err)
	}

	parsed, err := domain.ParseDigest(hash)
	if err != nil {
		return nil, fmt.Errorf("load validation request: %w", err)
	}
	r.RequestHash = parsed
	r.Requester = domain.Principal(requester)
	r.Validator = domain.Principal(validator)
	r.AgentID = domain.AgentID(agentID)
	r.Status = models.ValidationStatus(status)

	if value.Valid {
		response := models.ValidationResponse{
			Value:       uint8(value.Int16),
			ResponseURI: responseURI.String,
			Tag:         tag.String,
			Responder:   domain.Principal(responder.String),
			RespondedAt: respondedAt.Time,
		}
		if responseHash.String != "" {
			digest, err := domain.ParseDigest(responseHash.String)
			if err != nil {
				return nil, fmt.Errorf("load validation request: %w", err)
			}
			response.ResponseHash = digest
		}
		r.Response = &response
	}
	return &r, nil
}
