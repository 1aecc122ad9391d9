// Package lead defines the CRM lead and platform account records the
// onboarding pipeline operates on, plus the field-normalization rules
// shared by the filter and provisioning stages.
package lead

import (
	"strconv"
	"strings"
	"time"
)

// Lead is one row of the CRM contact export.
type Lead struct {
	PrimaryEmail string // hs_primary_email
	Email        string // hs_email, fallback
	FirstName    string // hs_firstname
	LastName     string // hs_lastname
	Segment      string // segment_name

	// LastCompletedGrade is the last grade the student finished; nil when
	// the export carries no usable number.
	LastCompletedGrade *int

	// AddedAt is the CRM creation timestamp in epoch milliseconds.
	AddedAt int64 // hs_added_at

	// BirthDate is the raw export value; see NormalizeBirthDate.
	BirthDate string // hs_students_birthdate
}

// ResolvedEmail returns the lead's canonical email: the primary email when
// present, otherwise the fallback, lowercased and trimmed.
func (l Lead) ResolvedEmail() string {
	email := l.PrimaryEmail
	if email == "" {
		email = l.Email
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// CurrentGrade returns the student's upcoming grade (last completed + 1).
// ok is false when the last-completed grade is unknown.
func (l Lead) CurrentGrade() (grade int, ok bool) {
	if l.LastCompletedGrade == nil {
		return 0, false
	}
	return *l.LastCompletedGrade + 1, true
}

// FullName returns "First Last" with either part optional.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// SignupDate converts the CRM creation timestamp to a time; leads without a
// timestamp fall back to now.
func (l Lead) SignupDate(now time.Time) time.Time {
	if l.AddedAt <= 0 {
		return now
	}
	return time.UnixMilli(l.AddedAt)
}

// GradeString converts a numeric grade to the platform's grade label:
// negative → "PK", zero → "K", otherwise the decimal string.
func GradeString(grade int) string {
	switch {
	case grade < 0:
		return "PK"
	case grade == 0:
		return "K"
	default:
		return strconv.Itoa(grade)
	}
}

// NormalizeBirthDate converts an export birth date to YYYY-MM-DD.
// MM-DD-YYYY is the expected CRM format; YYYY-MM-DD passes through.
// Anything else (or empty) yields ok=false and the field is omitted from
// the account payload.
func NormalizeBirthDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, layout := range []string{"01-02-2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// AccountSet is the set of emails with existing platform accounts,
// normalized to lower case.
type AccountSet map[string]struct{}

// NewAccountSet builds an AccountSet from raw email values, skipping blanks.
func NewAccountSet(emails []string) AccountSet {
	set := make(AccountSet, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the normalized email is in the set.
func (s AccountSet) Contains(email string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
