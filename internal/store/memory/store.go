// Package memory is an in-process Store and Directory. Safe for concurrent
// access. Intended for tests and local development; nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/djlord-it/easybooking/internal/domain"
)

type Store struct {
	mu     sync.RWMutex
	jobs   map[int64]domain.Job
	nextID int64
}

func New() *Store {
	return &Store{
		jobs:   make(map[int64]domain.Job),
		nextID: 1,
	}
}

func (m *Store) Ping(_ context.Context) error { return nil }

func (m *Store) Close() error { return nil }

// Fetch returns a copy of the job or domain.ErrNotFound.
func (m *Store) Fetch(_ context.Context, id int64) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)
	}
	return job.Clone(), nil
}

// Create assigns the next identifier and stores the job at version 1.
func (m *Store) Create(_ context.Context, job domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job = job.Clone()
	job.ID = m.nextID
	job.Version = 1
	m.nextID++

	m.jobs[job.ID] = job
	return job.Clone(), nil
}

// Save replaces the stored job if its version still matches the one the
// caller fetched. The returned job carries the new version.
func (m *Store) Save(_ context.Context, job domain.Job) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[job.ID]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %d: %w", job.ID, domain.ErrNotFound)
	}
	if current.Version != job.Version {
		return domain.Job{}, fmt.Errorf("job %d at version %d: %w", job.ID, job.Version, domain.ErrConcurrentModification)
	}

	job = job.Clone()
	job.Version++
	job.CreatedAt = current.CreatedAt
	m.jobs[job.ID] = job
	return job.Clone(), nil
}

// QueryByUser returns the jobs requested by the user, oldest first.
func (m *Store) QueryByUser(_ context.Context, userID int64) ([]domain.Job, error) {
	return m.filter(func(j domain.Job) bool {
		return j.RequesterID == userID
	}), nil
}

// QueryPending returns pending jobs in any of the given languages, oldest first.
func (m *Store) QueryPending(_ context.Context, languageIDs []int64) ([]domain.Job, error) {
	if len(languageIDs) == 0 {
		return []domain.Job{}, nil
	}
	return m.filter(func(j domain.Job) bool {
		return j.Status == domain.JobStatusPending && slices.Contains(languageIDs, j.LanguageID)
	}), nil
}

func (m *Store) filter(keep func(domain.Job) bool) []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.Job) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
