package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"agentledger/internal/resume/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/platform/tx"
)

// Postgres is the production Store.
//
// Schema:
//
//	CREATE TABLE resumes (
//	    id              BIGSERIAL PRIMARY KEY,
//	    owner_principal TEXT        NOT NULL,
//	    linked_agent_id BIGINT      NOT NULL DEFAULT 0,
//	    reputation      BIGINT      NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX resumes_agent_idx ON resumes (linked_agent_id)
//	    WHERE linked_agent_id <> 0;
//
//	CREATE TABLE job_records (
//	    job_id          BIGSERIAL PRIMARY KEY,
//	    resume_id       BIGINT      NOT NULL REFERENCES resumes (id),
//	    submitter       TEXT        NOT NULL,
//	    job_type        TEXT        NOT NULL,
//	    status          TEXT        NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    economic_value  BIGINT      NOT NULL DEFAULT 0,
//	    proof_hash      TEXT        NOT NULL DEFAULT '',
//	    proof_uri       TEXT        NOT NULL,
//	    description     TEXT        NOT NULL DEFAULT '',
//	    outcome_success BOOLEAN     NOT NULL DEFAULT FALSE,
//	    tag1            TEXT        NOT NULL DEFAULT '',
//	    tag2            TEXT        NOT NULL DEFAULT '',
//	    resolved_at     TIMESTAMPTZ
//	);
//	CREATE INDEX job_records_resume_idx ON job_records (resume_id, job_id);
//
//	CREATE TABLE feedback_entries (
//	    id         BIGSERIAL PRIMARY KEY,
//	    resume_id  BIGINT      NOT NULL REFERENCES resumes (id),
//	    client     TEXT        NOT NULL,
//	    client_idx INT         NOT NULL,
//	    score      SMALLINT    NOT NULL,
//	    tag1       TEXT        NOT NULL DEFAULT '',
//	    tag2       TEXT        NOT NULL DEFAULT '',
//	    file_uri   TEXT        NOT NULL,
//	    file_hash  TEXT        NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    revoked    BOOLEAN     NOT NULL DEFAULT FALSE,
//	    UNIQUE (resume_id, client, client_idx)
//	);
//
//	CREATE TABLE registry_fees (
//	    id      INT    PRIMARY KEY DEFAULT 1 CHECK (id = 1),
//	    balance BIGINT NOT NULL DEFAULT 0
//	);
//	INSERT INTO registry_fees (id, balance) VALUES (1, 0);
//
// Mutations that touch more than one row (AppendJob, ResolveJob) expect to
// run inside a caller-provided transaction via pkg/platform/tx.
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

func (s *Postgres) Create(ctx context.Context, resume *models.Resume) error {
	q := tx.QuerierFor(ctx, s.db)
	err := q.QueryRowContext(ctx, `
		INSERT INTO resumes (owner_principal, linked_agent_id, reputation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		resume.Owner.String(), int64(resume.LinkedAgentID), int64(resume.Reputation),
		resume.CreatedAt, resume.UpdatedAt,
	).Scan(&resume.ID)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("create resume: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, resumeID domain.ResumeID) (*models.Resume, error) {
	q := tx.QuerierFor(ctx, s.db)
	return scanResume(q.QueryRowContext(ctx, `
		SELECT id, owner_principal, linked_agent_id, reputation, created_at, updated_at
		FROM resumes WHERE id = $1`,
		int64(resumeID),
	))
}

func (s *Postgres) FindByAgent(ctx context.Context, agentID domain.AgentID) (*models.Resume, error) {
	q := tx.QuerierFor(ctx, s.db)
	return scanResume(q.QueryRowContext(ctx, `
		SELECT id, owner_principal, linked_agent_id, reputation, created_at, updated_at
		FROM resumes WHERE linked_agent_id = $1 AND linked_agent_id <> 0`,
		int64(agentID),
	))
}

func (s *Postgres) SetIdentityLink(ctx context.Context, resumeID domain.ResumeID, agentID domain.AgentID, now time.Time) error {
	q := tx.QuerierFor(ctx, s.db)

	var linked int64
	err := q.QueryRowContext(ctx,
		`SELECT linked_agent_id FROM resumes WHERE id = $1 FOR UPDATE`,
		int64(resumeID),
	).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock resume: %w", err)
	}
	if linked != 0 {
		return sentinel.ErrInvalidState
	}

	_, err = q.ExecContext(ctx,
		`UPDATE resumes SET linked_agent_id = $2, updated_at = $3 WHERE id = $1`,
		int64(resumeID), int64(agentID), now,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("link resume: %w", err)
	}
	return nil
}

func (s *Postgres) AppendJob(ctx context.Context, agentID domain.AgentID, record *models.JobRecord, fee uint64) (domain.JobID, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return 0, err
	}

	var tag1, tag2 string
	if len(record.Tags) > 0 {
		tag1 = record.Tags[0]
	}
	if len(record.Tags) > 1 {
		tag2 = record.Tags[1]
	}

	var jobID int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO job_records (resume_id, submitter, job_type, status, created_at, economic_value, proof_hash, proof_uri, description, tag1, tag2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING job_id`,
		int64(resumeID), record.Submitter.String(), string(record.JobType), string(record.Status),
		record.CreatedAt, int64(record.EconomicValue), record.ProofHash.String(),
		record.ProofURI, record.Description, tag1, tag2,
	).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("append job record: %w", err)
	}

	if fee > 0 {
		if _, err := q.ExecContext(ctx,
			`UPDATE registry_fees SET balance = balance + $1 WHERE id = 1`,
			int64(fee),
		); err != nil {
			return 0, fmt.Errorf("accrue fee: %w", err)
		}
	}

	record.JobID = domain.JobID(jobID)
	return record.JobID, nil
}

func (s *Postgres) ResolveJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID, resolve func(resume *models.Resume, job *models.JobRecord) error) error {
	q := tx.QuerierFor(ctx, s.db)

	resume, err := scanResume(q.QueryRowContext(ctx, `
		SELECT id, owner_principal, linked_agent_id, reputation, created_at, updated_at
		FROM resumes WHERE linked_agent_id = $1 AND linked_agent_id <> 0 FOR UPDATE`,
		int64(agentID),
	))
	if err != nil {
		return err
	}

	job, err := scanJob(q.QueryRowContext(ctx,
		jobSelect+` WHERE resume_id = $1 AND job_id = $2 FOR UPDATE`,
		int64(resume.ID), int64(jobID),
	))
	if err != nil {
		return err
	}

	if err := resolve(resume, job); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE job_records SET status = $2, outcome_success = $3, resolved_at = $4
		WHERE job_id = $1`,
		int64(job.JobID), string(job.Status), job.OutcomeSuccess, job.ResolvedAt,
	); err != nil {
		return fmt.Errorf("resolve job record: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE resumes SET reputation = $2, updated_at = $3 WHERE id = $1`,
		int64(resume.ID), int64(resume.Reputation), resume.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update reputation: %w", err)
	}
	return nil
}

func (s *Postgres) ListJobs(ctx context.Context, agentID domain.AgentID) ([]models.JobRecord, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, jobSelect+` WHERE resume_id = $1 ORDER BY job_id`, int64(resumeID))
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	defer rows.Close()

	jobs := []models.JobRecord{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Postgres) FindJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID) (*models.JobRecord, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return nil, err
	}
	return scanJob(q.QueryRowContext(ctx,
		jobSelect+` WHERE resume_id = $1 AND job_id = $2`,
		int64(resumeID), int64(jobID),
	))
}

func (s *Postgres) JobTypeCounts(ctx context.Context, agentID domain.AgentID) ([]models.JobTypeCount, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT job_type, COUNT(*) FROM job_records
		WHERE resume_id = $1 GROUP BY job_type ORDER BY MIN(job_id)`,
		int64(resumeID),
	)
	if err != nil {
		return nil, fmt.Errorf("count job types: %w", err)
	}
	defer rows.Close()

	counts := []models.JobTypeCount{}
	for rows.Next() {
		var (
			jt string
			n  int
		)
		if err := rows.Scan(&jt, &n); err != nil {
			return nil, fmt.Errorf("scan job type count: %w", err)
		}
		counts = append(counts, models.JobTypeCount{JobType: models.JobType(jt), Count: n})
	}
	return counts, rows.Err()
}

func (s *Postgres) AppendFeedback(ctx context.Context, agentID domain.AgentID, feedback *models.Feedback) (int, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return 0, err
	}

	var index int
	err = q.QueryRowContext(ctx, `
		INSERT INTO feedback_entries (resume_id, client, client_idx, score, tag1, tag2, file_uri, file_hash, created_at)
		SELECT $1, $2, COUNT(*), $3, $4, $5, $6, $7, $8
		FROM feedback_entries WHERE resume_id = $1 AND client = $2
		RETURNING client_idx`,
		int64(resumeID), feedback.Client.String(), int16(feedback.Score),
		feedback.Tag1, feedback.Tag2, feedback.FileURI, feedback.FileHash.String(),
		feedback.CreatedAt,
	).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("append feedback: %w", err)
	}
	return index, nil
}

func (s *Postgres) RevokeFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal, index int, revoke func(*models.Feedback) error) error {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return err
	}

	entry, err := scanFeedback(q.QueryRowContext(ctx,
		feedbackSelect+` WHERE resume_id = $1 AND client = $2 AND client_idx = $3 FOR UPDATE`,
		int64(resumeID), client.String(), index,
	))
	if err != nil {
		return err
	}

	if err := revoke(entry); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE feedback_entries SET revoked = $4
		WHERE resume_id = $1 AND client = $2 AND client_idx = $3`,
		int64(resumeID), client.String(), index, entry.Revoked,
	); err != nil {
		return fmt.Errorf("revoke feedback: %w", err)
	}
	return nil
}

func (s *Postgres) ListFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal) ([]models.Feedback, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		feedbackSelect+` WHERE resume_id = $1 AND client = $2 ORDER BY client_idx`,
		int64(resumeID), client.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	entries := []models.Feedback{}
	for rows.Next() {
		entry, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *Postgres) FeedbackClients(ctx context.Context, agentID domain.AgentID) ([]domain.Principal, error) {
	q := tx.QuerierFor(ctx, s.db)

	resumeID, err := s.resumeIDByAgent(ctx, q, agentID)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT client FROM feedback_entries
		WHERE resume_id = $1 GROUP BY client ORDER BY MIN(id)`,
		int64(resumeID),
	)
	if err != nil {
		return nil, fmt.Errorf("list feedback clients: %w", err)
	}
	defer rows.Close()

	clients := []domain.Principal{}
	for rows.Next() {
		var client string
		if err := rows.Scan(&client); err != nil {
			return nil, fmt.Errorf("scan feedback client: %w", err)
		}
		clients = append(clients, domain.Principal(client))
	}
	return clients, rows.Err()
}

func (s *Postgres) FeeBalance(ctx context.Context) (uint64, error) {
	q := tx.QuerierFor(ctx, s.db)

	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM registry_fees WHERE id = 1`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fee balance: %w", err)
	}
	return uint64(balance), nil
}

func (s *Postgres) WithdrawFees(ctx context.Context) (uint64, error) {
	q := tx.QuerierFor(ctx, s.db)

	var withdrawn int64
	err := q.QueryRowContext(ctx, `
		WITH prior AS (
			SELECT balance FROM registry_fees WHERE id = 1 FOR UPDATE
		)
		UPDATE registry_fees SET balance = 0
		FROM prior
		WHERE registry_fees.id = 1 AND prior.balance <> 0
		RETURNING prior.balance`,
	).Scan(&withdrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrInvalidState
	}
	if err != nil {
		return 0, fmt.Errorf("withdraw fees: %w", err)
	}
	return uint64(withdrawn), nil
}

func (s *Postgres) resumeIDByAgent(ctx context.Context, q tx.Querier, agentID domain.AgentID) (domain.ResumeID, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM resumes WHERE linked_agent_id = $1 AND linked_agent_id <> 0`,
		int64(agentID),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find resume by agent: %w", err)
	}
	return domain.ResumeID(id), nil
}

const jobSelect = `
	SELECT job_id, submitter, job_type, status, created_at, economic_value, proof_hash, proof_uri, description, outcome_success, tag1, tag2, resolved_at
	FROM job_records`

const feedbackSelect = `
	SELECT client, score, tag1, tag2, file_uri, file_hash, created_at, revoked
	FROM feedback_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResume(row rowScanner) (*models.Resume, error) {
	var (
		r      models.Resume
		owner  string
		agent  int64
		rep    int64
		id     int64
	)
	err := row.Scan(&id, &owner, &agent, &rep, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan resume: %w", err)
	}
	r.ID = domain.ResumeID(id)
	r.Owner = domain.Principal(owner)
	r.LinkedAgentID = domain.AgentID(agent)
	r.Reputation = uint64(rep)
	return &r, nil
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var (
		j          models.JobRecord
		jobID      int64
		submitter  string
		jobType    string
		status     string
		value      int64
		proofHash  string
		tag1, tag2 string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&jobID, &submitter, &jobType, &status, &j.CreatedAt, &value,
		&proofHash, &j.ProofURI, &j.Description, &j.OutcomeSuccess, &tag1, &tag2, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job record: %w", err)
	}
	j.JobID = domain.JobID(jobID)
	j.Submitter = domain.Principal(submitter)
	j.JobType = models.JobType(jobType)
	j.Status = models.JobStatus(status)
	j.EconomicValue = uint64(value)
	if proofHash != "" {
		digest, err := domain.ParseDigest(proofHash)
		if err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		j.ProofHash = digest
	}
	for _, tag := range []string{tag1, tag2} {
		if tag != "" {
			j.Tags = append(j.Tags, tag)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		j.ResolvedAt = &t
	}
	return &j, nil
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var (
		f        models.Feedback
		client   string
		score    int16
		fileHash string
	)
	err := row.Scan(&client, &score, &f.Tag1, &f.Tag2, &f.FileURI, &fileHash, &f.CreatedAt, &f.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}
	f.Client = domain.Principal(client)
	f.Score = uint8(score)
	if fileHash != "" {
		digest, err := domain.ParseDigest(fileHash)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.FileHash = digest
	}
	return &f, nil
}
