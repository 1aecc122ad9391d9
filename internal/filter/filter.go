// Package filter narrows the lead set to those eligible for onboarding.
// The five stages run in a fixed order; every stage is a pure predicate
// returning a subset of its input, and no stage deduplicates — two lead
// rows sharing an email are independent records throughout.
package filter

import (
	"time"

	"github.com/lwai/onboarding/internal/lead"
	"github.com/lwai/onboarding/internal/refdata"
)

// sanityFloor marks the oldest creation timestamp treated as real data;
// anything earlier is corrupt and dropped rather than counted as very old.
var sanityFloor = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ExcludeExistingAccounts drops leads whose resolved email already has a
// platform account.
func ExcludeExistingAccounts(leads []lead.Lead, accounts lead.AccountSet) []lead.Lead {
	return keep(leads, func(l lead.Lead) bool {
		return !accounts.Contains(l.ResolvedEmail())
	})
}

// ExcludeStale drops leads created more than maxAge before now, or before
// the year-2000 sanity floor. A lead exactly at the cutoff is retained.
func ExcludeStale(leads []lead.Lead, now time.Time, maxAge time.Duration) []lead.Lead {
	cutoff := now.Add(-maxAge).UnixMilli()
	floor := sanityFloor.UnixMilli()
	return keep(leads, func(l lead.Lead) bool {
		return l.AddedAt >= cutoff && l.AddedAt >= floor
	})
}

// ExcludeBlacklisted drops leads whose resolved email appears in the
// blacklist (case-insensitive exact match).
func ExcludeBlacklisted(leads []lead.Lead, blacklist map[string]struct{}) []lead.Lead {
	return keep(leads, func(l lead.Lead) bool {
		_, blocked := blacklist[l.ResolvedEmail()]
		return !blocked
	})
}

// ExcludeIneligibleGrades keeps only leads whose current grade falls inside
// their own segment's inclusive [min, max] range. Unknown grade, unknown
// segment, or a segment absent from configuration all drop the lead.
func ExcludeIneligibleGrades(leads []lead.Lead, segments refdata.SegmentTable) []lead.Lead {
	return keep(leads, func(l lead.Lead) bool {
		grade, ok := l.CurrentGrade()
		if !ok {
			return false
		}
		seg, ok := segments.Lookup(l.Segment)
		if !ok {
			return false
		}
		return seg.GradeInRange(grade)
	})
}

// ExcludeInactiveSegments drops leads whose segment is not flagged active.
func ExcludeInactiveSegments(leads []lead.Lead, segments refdata.SegmentTable) []lead.Lead {
	return keep(leads, func(l lead.Lead) bool {
		seg, ok := segments.Lookup(l.Segment)
		return ok && seg.Active
	})
}

// Apply runs the full pipeline in order: existing accounts, stale dates,
// blacklist, grade eligibility, inactive segments.
func Apply(leads []lead.Lead, accounts lead.AccountSet, blacklist map[string]struct{},
	segments refdata.SegmentTable, now time.Time, maxAge time.Duration) []lead.Lead {

	out := ExcludeExistingAccounts(leads, accounts)
	out = ExcludeStale(out, now, maxAge)
	out = ExcludeBlacklisted(out, blacklist)
	out = ExcludeIneligibleGrades(out, segments)
	out = ExcludeInactiveSegments(out, segments)
	return out
}

func keep(leads []lead.Lead, pred func(lead.Lead) bool) []lead.Lead {
	out := make([]lead.Lead, 0, len(leads))
	for _, l := range leads {
		if pred(l) {
			out = append(out, l)
		}
	}
	return out
}
