// Package validation checks job payloads against typed field rules and
// reports every failing field in one pass.
package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/djlord-it/easybooking/internal/domain"
)

type RuleKind int

const (
	RuleRequired RuleKind = iota
	RuleInteger
	RuleMin
	RuleMax
	RuleDate
	RuleAfterToday
	RuleOneOf
	RuleUserExists
	RuleLanguageExists
)

// Rule is one constraint on a field. Min applies to RuleMin, Max to RuleMax,
// Values to RuleOneOf.
type Rule struct {
	Kind   RuleKind
	Min    int64
	Max    int64
	Values []string
}

func Required() Rule         { return Rule{Kind: RuleRequired} }
func Integer() Rule          { return Rule{Kind: RuleInteger} }
func Min(n int64) Rule       { return Rule{Kind: RuleMin, Min: n} }
func Max(n int64) Rule       { return Rule{Kind: RuleMax, Max: n} }
func Date() Rule             { return Rule{Kind: RuleDate} }
func AfterToday() Rule       { return Rule{Kind: RuleAfterToday} }
func OneOf(v ...string) Rule { return Rule{Kind: RuleOneOf, Values: v} }
func UserExists() Rule       { return Rule{Kind: RuleUserExists} }
func LanguageExists() Rule   { return Rule{Kind: RuleLanguageExists} }

// FieldRules binds an ordered rule list to a payload field.
// Evaluation of a field stops at its first failing rule.
type FieldRules struct {
	Field string
	Rules []Rule
}

type Ruleset []FieldRules

// Lookup answers existence questions for reference rules.
type Lookup interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	LanguageExists(ctx context.Context, id int64) (bool, error)
}

type Validator struct {
	lookup Lookup
	now    func() time.Time
}

func New(lookup Lookup) *Validator {
	return &Validator{lookup: lookup, now: time.Now}
}

// WithClock overrides the time source used by AfterToday.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate returns nil when every field satisfies its rules, a
// domain.ValidationErrors naming each failing field otherwise, or a plain
// error when a lookup itself fails.
func (v *Validator) Validate(ctx context.Context, payload Payload, rules Ruleset) error {
	var errs domain.ValidationErrors

	for _, fr := range rules {
		msg, err := v.checkField(ctx, payload, fr)
		if err != nil {
			return fmt.Errorf("validate %s: %w", fr.Field, err)
		}
		if msg != "" {
			errs = append(errs, domain.FieldError{Field: fr.Field, Message: msg})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) checkField(ctx context.Context, payload Payload, fr FieldRules) (string, error) {
	if !payload.Has(fr.Field) {
		for _, r := range fr.Rules {
			if r.Kind == RuleRequired {
				return "is required", nil
			}
		}
		// Absent optional fields skip the remaining rules.
		return "", nil
	}

	value := payload[fr.Field]
	for _, r := range fr.Rules {
		msg, err := v.apply(ctx, r, value)
		if err != nil || msg != "" {
			return msg, err
		}
	}
	return "", nil
}

func (v *Validator) apply(ctx context.Context, r Rule, value any) (string, error) {
	switch r.Kind {
	case RuleRequired:
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return "is required", nil
		}
		return "", nil

	case RuleInteger:
		if _, ok := toInt64(value); !ok {
			return "must be an integer", nil
		}
		return "", nil

	case RuleMin:
		n, ok := toInt64(value)
		if !ok {
			return "must be an integer", nil
		}
		if n < r.Min {
			return fmt.Sprintf("must be at least %d", r.Min), nil
		}
		return "", nil

	case RuleMax:
		n, ok := toInt64(value)
		if !ok {
			return "must be an integer", nil
		}
		if n > r.Max {
			return fmt.Sprintf("must be at most %d", r.Max), nil
		}
		return "", nil

	case RuleDate:
		if _, err := toTime(value); err != nil {
			return "must be a valid date", nil
		}
		return "", nil

	case RuleAfterToday:
		t, err := toTime(value)
		if err != nil {
			return "must be a valid date", nil
		}
		if !t.After(startOfDay(v.now())) {
			return "must be a date after today", nil
		}
		return "", nil

	case RuleOneOf:
		s, ok := value.(string)
		if ok {
			for _, allowed := range r.Values {
				if s == allowed {
					return "", nil
				}
			}
		}
		return "must be one of: " + strings.Join(r.Values, ", "), nil

	case RuleUserExists:
		return v.exists(ctx, value, "user", v.lookup.UserExists)

	case RuleLanguageExists:
		return v.exists(ctx, value, "language", v.lookup.LanguageExists)

	default:
		return "", fmt.Errorf("unknown rule kind %d", r.Kind)
	}
}

func (v *Validator) exists(ctx context.Context, value any, what string, check func(context.Context, int64) (bool, error)) (string, error) {
	id, ok := toInt64(value)
	if !ok {
		return "must be an integer", nil
	}
	found, err := check(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("must reference an existing %s", what), nil
	}
	return "", nil
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
