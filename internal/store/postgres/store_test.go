package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestNullableRoundTrip(t *testing.T) {
	if got := int64Ptr(nullInt64(nil)); got != nil {
		t.Errorf("nil int64 came back as %d", *got)
	}
	id := int64(9)
	if got := int64Ptr(nullInt64(&id)); got == nil || *got != 9 {
		t.Errorf("int64 round trip = %v", got)
	}

	if got := timePtr(nullTime(nil)); got != nil {
		t.Errorf("nil time came back as %v", *got)
	}
	berlin := time.FixedZone("CEST", 2*60*60)
	at := time.Date(2026, 10, 16, 16, 30, 0, 0, berlin)
	got := timePtr(nullTime(&at))
	if got == nil || !got.Equal(at) || got.Location() != time.UTC {
		t.Errorf("time round trip = %v", got)
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"foreign key", &pq.Error{Code: "23503"}, true},
		{"wrapped foreign key", fmt.Errorf("insert: %w", &pq.Error{Code: "23503"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain error", errors.New("23503"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isForeignKeyViolation(tt.err); got != tt.want {
				t.Errorf("isForeignKeyViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUpdateQueryGuardsVersion(t *testing.T) {
	if !strings.Contains(queryUpdateJob, "AND version = $2") {
		t.Error("update must be conditional on the fetched version")
	}
	if !strings.Contains(queryUpdateJob, "version = version + 1") {
		t.Error("update must bump the version")
	}
}

func TestMigrations_OrderedAndIdempotent(t *testing.T) {
	seen := make(map[string]bool)
	for i, m := range migrations {
		if m.Version == "" || m.Name == "" {
			t.Errorf("migration %d has no version or name", i)
		}
		if seen[m.Version] {
			t.Errorf("duplicate migration version %s", m.Version)
		}
		seen[m.Version] = true
		if i > 0 && m.Version <= migrations[i-1].Version {
			t.Errorf("migration %s_%s is out of order", m.Version, m.Name)
		}
		for j, stmt := range m.Statements {
			if !strings.Contains(stmt, "IF NOT EXISTS") {
				t.Errorf("migration %s step %d is not idempotent: %s", m.Version, j+1, stmt)
			}
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []migration{
		{Version: "1", Name: "a"},
		{Version: "2", Name: "b"},
		{Version: "3", Name: "c"},
	}

	tests := []struct {
		name    string
		applied map[string]bool
		want    []string
	}{
		{"fresh database", nil, []string{"1", "2", "3"}},
		{"partially applied", map[string]bool{"1": true}, []string{"2", "3"}},
		{"gap is filled in order", map[string]bool{"1": true, "3": true}, []string{"2"}},
		{"up to date", map[string]bool{"1": true, "2": true, "3": true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range pendingMigrations(all, tt.applied) {
				got = append(got, m.Version)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("pending = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpContext(t *testing.T) {
	s := New(nil)
	ctx, cancel := s.opContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("no timeout configured, expected no deadline")
	}

	s.WithOpTimeout(2 * time.Second)
	ctx, cancel = s.opContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline")
	}
	if remaining := time.Until(deadline); remaining > 2*time.Second || remaining <= 0 {
		t.Errorf("remaining = %v, want within 2s", remaining)
	}
}
