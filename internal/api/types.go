package api

import (
	"time"

	"github.com/djlord-it/easybooking/internal/domain"
)

type AssignRequest struct {
	TranslatorID *int64 `json:"translator_id"`
}

type OfferRequest struct {
	TranslatorIDs []int64 `json:"translator_ids"`
}

type CancelRequest struct {
	CancelledBy *int64 `json:"cancelled_by"`
}

type JobResponse struct {
	ID           int64   `json:"id"`
	UserID       int64   `json:"user_id"`
	TranslatorID *int64  `json:"translator_id"`
	LanguageID   int64   `json:"language_id"`
	Status       string  `json:"status"`
	DueAt        string  `json:"due_at"`
	Duration     int     `json:"duration"`
	CancelledBy  *int64  `json:"cancelled_by,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	Version      int64   `json:"version"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type UserJobsResponse struct {
	ActiveJobs    []JobResponse `json:"active_jobs"`
	CompletedJobs []JobResponse `json:"completed_jobs"`
	CanceledJobs  []JobResponse `json:"canceled_jobs"`
}

type NotificationCounts struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

type NotificationStatsResponse struct {
	At    string                        `json:"at"`
	Kinds map[string]NotificationCounts `json:"kinds"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func toJobResponse(job domain.Job) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		UserID:       job.RequesterID,
		TranslatorID: job.TranslatorID,
		LanguageID:   job.LanguageID,
		Status:       string(job.Status),
		DueAt:        formatTime(job.DueAt),
		Duration:     job.Duration,
		CancelledBy:  job.CancelledBy,
		Version:      job.Version,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	if job.CompletedAt != nil {
		s := formatTime(*job.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}

// toJobResponses never returns nil so empty lists encode as [].
func toJobResponses(jobs []domain.Job) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = toJobResponse(j)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
