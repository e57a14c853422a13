// Package postgres stores jobs and reads the user directory from PostgreSQL
// through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/djlord-it/easybooking/internal/booking"
	"github.com/djlord-it/easybooking/internal/domain"
)

// PostgreSQL error code for a foreign key violation.
const codeForeignKeyViolation = "23503"

// Store implements booking.Store and booking.Directory using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration // 0 = caller's deadline only
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithOpTimeout bounds every store call that does not already carry a
// shorter deadline.
func (s *Store) WithOpTimeout(d time.Duration) *Store {
	s.opTimeout = d
	return s
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Fetch returns the job or domain.ErrNotFound.
func (s *Store) Fetch(ctx context.Context, id int64) (domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	job, err := scanJob(s.db.QueryRowContext(ctx, queryGetJobByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("fetch job %d: %w", id, err)
	}
	return job, nil
}

// Create inserts the job and returns it with its new ID at version 1.
// A requester or language that does not exist yields domain.ErrNotFound.
func (s *Store) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.QueryRowContext(ctx, queryInsertJob,
		job.RequesterID,
		nullInt64(job.TranslatorID),
		job.LanguageID,
		string(job.Status),
		job.DueAt,
		job.Duration,
		nullInt64(job.CancelledBy),
		nullTime(job.CompletedAt),
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&job.ID, &job.Version)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Job{}, fmt.Errorf("insert job: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Save writes the job if the stored version still equals job.Version.
// Returns domain.ErrConcurrentModification when another writer got there
// first, and domain.ErrNotFound when the row is gone.
func (s *Store) Save(ctx context.Context, job domain.Job) (domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.QueryRowContext(ctx, queryUpdateJob,
		job.ID,
		job.Version,
		nullInt64(job.TranslatorID),
		job.LanguageID,
		string(job.Status),
		job.DueAt,
		job.Duration,
		nullInt64(job.CancelledBy),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
	).Scan(&job.Version, &job.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is gone or its version moved on.
		var exists bool
		if err := s.db.QueryRowContext(ctx, queryJobExists, job.ID).Scan(&exists); err != nil {
			return domain.Job{}, fmt.Errorf("save job %d: %w", job.ID, err)
		}
		if !exists {
			return domain.Job{}, fmt.Errorf("job %d: %w", job.ID, domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("job %d at version %d: %w", job.ID, job.Version, domain.ErrConcurrentModification)
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Job{}, fmt.Errorf("save job %d: %w", job.ID, domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("save job %d: %w", job.ID, err)
	}
	return job, nil
}

// QueryByUser returns the jobs requested by the user, oldest first.
func (s *Store) QueryByUser(ctx context.Context, userID int64) ([]domain.Job, error) {
	return s.queryJobs(ctx, queryListJobsByRequester, userID)
}

// QueryPending returns pending jobs in any of the given languages.
func (s *Store) QueryPending(ctx context.Context, languageIDs []int64) ([]domain.Job, error) {
	if len(languageIDs) == 0 {
		return []domain.Job{}, nil
	}
	return s.queryJobs(ctx, queryListPendingJobsByLanguages, pq.Array(languageIDs))
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ResolveUser returns the user with their language IDs, or domain.ErrNotFound.
func (s *Store) ResolveUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var (
		user      domain.User
		languages pq.Int64Array
	)
	err := s.db.QueryRowContext(ctx, queryGetUser, id).Scan(&user.ID, &user.Name, &user.Email, &languages)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve user %d: %w", id, err)
	}
	user.LanguageIDs = []int64(languages)
	return user, nil
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, queryUserExists, id)
}

func (s *Store) LanguageExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, queryLanguageExists, id)
}

func (s *Store) exists(ctx context.Context, query string, id int64) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job         domain.Job
		status      string
		translator  sql.NullInt64
		cancelledBy sql.NullInt64
		completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.RequesterID,
		&translator,
		&job.LanguageID,
		&status,
		&job.DueAt,
		&job.Duration,
		&cancelledBy,
		&completedAt,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	job.TranslatorID = int64Ptr(translator)
	job.CancelledBy = int64Ptr(cancelledBy)
	job.CompletedAt = timePtr(completedAt)
	job.DueAt = job.DueAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation, i.e. a referenced user or language does not exist.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// Compile-time interface assertions
var (
	_ booking.Store     = (*Store)(nil)
	_ booking.Directory = (*Store)(nil)
)
