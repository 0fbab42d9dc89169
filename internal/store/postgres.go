package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/iomjobs/internal/parser"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `guid, title, employer, location, classification, area, job_type,
	hours_option, hours_type, salary_text, salary_min, salary_max, salary_type,
	to_char(posted_date, 'YYYY-MM-DD'), to_char(closing_date, 'YYYY-MM-DD'), to_char(start_date, 'YYYY-MM-DD'),
	summary, description, raw_html, reference, contact_name, contact_email, contact_phone,
	qualifications, experience, benefits, how_to_apply, additional_info, field_labels,
	source_url, apply_url, scraped_at, updated_at, is_active`

func scanJob(row pgx.Row) (*models.JobRecord, error) {
	var j models.JobRecord
	err := row.Scan(&j.GUID, &j.Title, &j.Employer, &j.Location, &j.Classification, &j.Area, &j.JobType,
		&j.HoursOption, &j.HoursType, &j.SalaryText, &j.SalaryMin, &j.SalaryMax, &j.SalaryType,
		&j.PostedDate, &j.ClosingDate, &j.StartDate,
		&j.Summary, &j.Description, &j.RawHTML, &j.Reference, &j.ContactName, &j.ContactEmail, &j.ContactPhone,
		&j.Qualifications, &j.Experience, &j.Benefits, &j.HowToApply, &j.AdditionalInfo, &j.FieldLabels,
		&j.SourceURL, &j.ApplyURL, &j.ScrapedAt, &j.UpdatedAt, &j.IsActive)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*models.JobRecord, error) {
	defer rows.Close()
	var jobs []*models.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// UpsertJobs reconciles each record against the stored row with the same
// GUID. Each record commits on its own so one bad row does not lose the rest
// of the batch; the counts cover the rows that committed and the returned
// error joins every row failure.
func (s *PostgresStore) UpsertJobs(ctx context.Context, jobs []models.JobRecord) (UpsertResult, error) {
	var (
		res  UpsertResult
		errs []error
	)
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		inserted, err := s.UpsertJob(ctx, j)
		if err != nil {
			errs = append(errs, fmt.Errorf("upsert job %s: %w", j.GUID, err))
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, errors.Join(errs...)
}

// UpsertJob inserts a new row or merges into the existing one under a row
// lock. A unique violation from a concurrent insert is retried as an update.
func (s *PostgresStore) UpsertJob(ctx context.Context, job models.JobRecord) (bool, error) {
	inserted, err := s.upsertOnce(ctx, job)
	if errors.Is(err, ErrDuplicateKey) {
		inserted, err = s.upsertOnce(ctx, job)
	}
	return inserted, err
}

func (s *PostgresStore) upsertOnce(ctx context.Context, job models.JobRecord) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	existing, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE guid = $1 FOR UPDATE`, job.GUID))

	inserted := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		job.ScrapedAt, job.UpdatedAt, job.IsActive = now, now, true
		if err := insertJob(ctx, tx, job); err != nil {
			return false, err
		}
		inserted = true
	case err != nil:
		return false, fmt.Errorf("lock job: %w", err)
	default:
		if err := updateJob(ctx, tx, Merge(*existing, job, now)); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, nil
}

func jobArgs(j models.JobRecord) []any {
	return []any{j.GUID, j.Title, j.Employer, j.Location, j.Classification, j.Area, j.JobType,
		j.HoursOption, j.HoursType, j.SalaryText, j.SalaryMin, j.SalaryMax, j.SalaryType,
		j.PostedDate, j.ClosingDate, j.StartDate,
		j.Summary, j.Description, j.RawHTML, j.Reference, j.ContactName, j.ContactEmail, j.ContactPhone,
		j.Qualifications, j.Experience, j.Benefits, j.HowToApply, j.AdditionalInfo, j.FieldLabels,
		j.SourceURL, j.ApplyURL, j.ScrapedAt, j.UpdatedAt, j.IsActive}
}

func insertJob(ctx context.Context, tx pgx.Tx, j models.JobRecord) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO jobs (guid, title, employer, location, classification, area, job_type,
		   hours_option, hours_type, salary_text, salary_min, salary_max, salary_type,
		   posted_date, closing_date, start_date,
		   summary, description, raw_html, reference, contact_name, contact_email, contact_phone,
		   qualifications, experience, benefits, how_to_apply, additional_info, field_labels,
		   source_url, apply_url, scraped_at, updated_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		   $14::text::date, $15::text::date, $16::text::date,
		   $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)`,
		jobArgs(j)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func updateJob(ctx context.Context, tx pgx.Tx, j models.JobRecord) error {
	_, err := tx.Exec(ctx,
		`UPDATE jobs SET title = $2, employer = $3, location = $4, classification = $5, area = $6, job_type = $7,
		   hours_option = $8, hours_type = $9, salary_text = $10, salary_min = $11, salary_max = $12, salary_type = $13,
		   posted_date = $14::text::date, closing_date = $15::text::date, start_date = $16::text::date,
		   summary = $17, description = $18, raw_html = $19, reference = $20, contact_name = $21,
		   contact_email = $22, contact_phone = $23, qualifications = $24, experience = $25, benefits = $26,
		   how_to_apply = $27, additional_info = $28, field_labels = $29, source_url = $30, apply_url = $31,
		   scraped_at = $32, updated_at = $33, is_active = $34
		 WHERE guid = $1`,
		jobArgs(j)...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, guid string) (*models.JobRecord, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE guid = $1`, guid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.JobRecord, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *filter.Active)
		argIdx++
	}
	if filter.Classification != "" {
		conditions = append(conditions, fmt.Sprintf("classification = $%d", argIdx))
		args = append(args, strings.ToUpper(filter.Classification))
		argIdx++
	}
	if filter.Employer != "" {
		conditions = append(conditions, fmt.Sprintf("employer ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Employer+"%")
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY scraped_at DESC, guid LIMIT $%d OFFSET $%d`,
		jobColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// normalizePage converts a 1-based page and limit into LIMIT/OFFSET values.
func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func (s *PostgresStore) ListEnrichmentCandidates(ctx context.Context, q EnrichmentQuery) ([]*models.JobRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE is_active AND source_url <> ''
		   AND (description IS NULL OR description = ''
		        OR (position($2 IN lower(split_part(description, $4, 1))) > 0
		            AND length(split_part(description, $4, 1)) < $3))
		 ORDER BY scraped_at DESC, guid
		 LIMIT $1`, q.Limit, strings.ToLower(q.SecondaryDomain), q.StubThreshold, parser.AttributionMarker)
	if err != nil {
		return nil, fmt.Errorf("list enrichment candidates: %w", err)
	}
	return scanJobs(rows)
}

func (s *PostgresStore) ListReparseCandidates(ctx context.Context, limit int) ([]*models.JobRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE is_active AND raw_html IS NOT NULL AND raw_html <> ''
		 ORDER BY updated_at, guid
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reparse candidates: %w", err)
	}
	return scanJobs(rows)
}

// ExpireJobs deactivates active jobs whose closing date is before today
// (YYYY-MM-DD). Inactive jobs are left alone.
func (s *PostgresStore) ExpireJobs(ctx context.Context, today string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET is_active = FALSE, updated_at = $2
		 WHERE is_active AND closing_date IS NOT NULL AND closing_date < $1::text::date`,
		today, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Scrape Logs ---

func (s *PostgresStore) CreateScrapeLog(ctx context.Context, l *models.ScrapeLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_logs (id, started_at, url_type, jobs_found, jobs_inserted, jobs_updated, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.StartedAt, l.URLType, l.JobsFound, l.JobsInserted, l.JobsUpdated, l.Status)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scrape log: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateScrapeLogProgress(ctx context.Context, id uuid.UUID, found, inserted, updated int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_logs SET jobs_found = $2, jobs_inserted = $3, jobs_updated = $4
		 WHERE id = $1 AND status = 'running'`, id, found, inserted, updated)
	if err != nil {
		return fmt.Errorf("update scrape log progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FinalizeScrapeLog(ctx context.Context, id uuid.UUID, status string, opts ...ScrapeLogOption) error {
	// Fetch current state
	var current models.ScrapeLog
	err := s.pool.QueryRow(ctx,
		`SELECT status, jobs_found, jobs_inserted, jobs_updated FROM scrape_logs WHERE id = $1`, id,
	).Scan(&current.Status, &current.JobsFound, &current.JobsInserted, &current.JobsUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get scrape log status: %w", err)
	}

	if !CanTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	ApplyScrapeLogOptions(&current, opts...)

	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_logs SET status = $2, completed_at = $3, jobs_found = $4, jobs_inserted = $5,
		   jobs_updated = $6, error_message = $7, sample_html = $8
		 WHERE id = $1 AND status = 'running'`,
		id, status, s.now(), current.JobsFound, current.JobsInserted, current.JobsUpdated,
		current.ErrorMessage, current.SampleHTML)
	if err != nil {
		return fmt.Errorf("finalize scrape log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: already finalized", ErrInvalidTransition)
	}
	return nil
}

func (s *PostgresStore) ListScrapeLogs(ctx context.Context, filter ScrapeLogFilter) ([]*models.ScrapeLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, started_at, completed_at, url_type, jobs_found, jobs_inserted, jobs_updated,
	            status, error_message, sample_html
	          FROM scrape_logs`
	args := []any{limit}
	if len(filter.URLTypes) > 0 {
		query += ` WHERE url_type = ANY($2)`
		args = append(args, filter.URLTypes)
	}
	query += ` ORDER BY started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scrape logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		if err := rows.Scan(&l.ID, &l.StartedAt, &l.CompletedAt, &l.URLType, &l.JobsFound, &l.JobsInserted,
			&l.JobsUpdated, &l.Status, &l.ErrorMessage, &l.SampleHTML); err != nil {
			return nil, fmt.Errorf("scan scrape log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
