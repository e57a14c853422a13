package validation

import (
	"math"

	"github.com/djlord-it/easybooking/internal/domain"
)

// maxDuration keeps durations within a 32-bit column.
const maxDuration = math.MaxInt32

// Payload field names shared by the rulesets and their callers.
const (
	FieldUserID       = "user_id"
	FieldDueDate      = "due_date"
	FieldLanguageID   = "language_id"
	FieldDuration     = "duration"
	FieldStatus       = "status"
	FieldTranslatorID = "translator_id"
)

// CreateJobRules is the ruleset for a new job.
func CreateJobRules() Ruleset {
	return Ruleset{
		{Field: FieldUserID, Rules: []Rule{Required(), UserExists()}},
		{Field: FieldDueDate, Rules: []Rule{Required(), Date(), AfterToday()}},
		{Field: FieldLanguageID, Rules: []Rule{Required(), LanguageExists()}},
		{Field: FieldDuration, Rules: []Rule{Required(), Integer(), Min(1), Max(maxDuration)}},
	}
}

// UpdateJobRules is the ruleset for a partial job update. Every field is
// optional; present fields must satisfy the same constraints as on creation.
func UpdateJobRules() Ruleset {
	statuses := make([]string, 0, len(domain.JobStatuses))
	for _, s := range domain.JobStatuses {
		statuses = append(statuses, string(s))
	}
	return Ruleset{
		{Field: FieldStatus, Rules: []Rule{OneOf(statuses...)}},
		{Field: FieldTranslatorID, Rules: []Rule{UserExists()}},
		{Field: FieldDueDate, Rules: []Rule{Date(), AfterToday()}},
		{Field: FieldLanguageID, Rules: []Rule{LanguageExists()}},
		{Field: FieldDuration, Rules: []Rule{Integer(), Min(1), Max(maxDuration)}},
	}
}
