package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestJobStatus_Values(t *testing.T) {
	tests := []struct {
		status   JobStatus
		want     string
		terminal bool
	}{
		{JobStatusPending, "pending", false},
		{JobStatusAssigned, "assigned", false},
		{JobStatusCompleted, "completed", true},
		{JobStatusCanceled, "canceled", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("JobStatus = %q, want %q", tt.status, tt.want)
			}
			if tt.status.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", tt.status.IsTerminal(), tt.terminal)
			}
			if !tt.status.Valid() {
				t.Errorf("Valid() = false for %q", tt.status)
			}
		})
	}
}

func TestJobStatus_UnknownIsInvalid(t *testing.T) {
	for _, s := range []JobStatus{"", "active", "cancelled", "PENDING"} {
		if s.Valid() {
			t.Errorf("Valid() = true for %q", s)
		}
	}
}

func TestJob_CloneDoesNotSharePointers(t *testing.T) {
	translator := int64(9)
	completed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := Job{ID: 1, TranslatorID: &translator, CompletedAt: &completed}

	clone := job.Clone()
	*clone.TranslatorID = 10
	*clone.CompletedAt = completed.Add(time.Hour)

	if *job.TranslatorID != 9 {
		t.Errorf("original TranslatorID changed to %d", *job.TranslatorID)
	}
	if !job.CompletedAt.Equal(completed) {
		t.Errorf("original CompletedAt changed to %v", job.CompletedAt)
	}
}

func TestInvalidTransitionError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("assign job 3: %w", &InvalidTransitionError{Op: OpAssign, From: JobStatusCompleted})

	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("expected errors.Is(err, ErrInvalidTransition)")
	}

	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatal("expected errors.As to find *InvalidTransitionError")
	}
	if ite.Op != OpAssign || ite.From != JobStatusCompleted {
		t.Errorf("got op=%s from=%s", ite.Op, ite.From)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "duration", Message: "must be at least 1"}}
	if got := single.Error(); got != "validation failed: duration: must be at least 1" {
		t.Errorf("single error = %q", got)
	}

	multi := ValidationErrors{
		{Field: "user_id", Message: "is required"},
		{Field: "due_date", Message: "must be a date after today"},
	}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "user_id: is required") {
		t.Errorf("multi error = %q", got)
	}
	if fields := multi.Fields(); len(fields) != 2 || fields[1] != "due_date" {
		t.Errorf("Fields() = %v", fields)
	}
}

func TestJob_IsActive(t *testing.T) {
	want := map[JobStatus]bool{
		JobStatusPending:   true,
		JobStatusAssigned:  true,
		JobStatusCompleted: false,
		JobStatusCanceled:  false,
	}
	for status, active := range want {
		if got := (Job{Status: status}).IsActive(); got != active {
			t.Errorf("%s: IsActive() = %v, want %v", status, got, active)
		}
	}
}
