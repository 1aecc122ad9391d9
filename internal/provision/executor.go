package provision

import (
	"context"
	"log"
	"time"

	"github.com/lwai/onboarding/internal/timeback"
)

// Platform is the subset of the learning-platform API the executor needs.
type Platform interface {
	CreateStudent(ctx context.Context, payload timeback.AccountPayload) (string, error)
	AssignProfile(ctx context.Context, userID string, assignment timeback.ProfileAssignment) error
}

// Executor sends prepared payloads to the platform sequentially, one lead
// at a time. A failed step is logged and counted; it never stops the
// batch, and a failed account creation skips that lead's assignments.
type Executor struct {
	platform Platform
	now      func() time.Time
}

// NewExecutor creates an executor over the given platform client.
func NewExecutor(platform Platform) *Executor {
	return &Executor{platform: platform, now: time.Now}
}

// SetNow replaces the clock (useful for testing).
func (e *Executor) SetNow(now func() time.Time) {
	e.now = now
}

// Execute provisions every result in order and returns the run counters
// plus the success and fail log entries.
func (e *Executor) Execute(ctx context.Context, results []Result) (Summary, []SuccessEntry, []FailEntry) {
	var (
		sum       Summary
		successes []SuccessEntry
		failures  []FailEntry
	)

	for _, r := range results {
		for _, msg := range r.Errors {
			failures = append(failures, e.failEntry(r, StepProcessing, "", msg))
		}

		if r.AccountPayload == nil {
			sum.AccountsFailed++
			failures = append(failures, e.failEntry(r, StepAccountCreation, "", "no account payload prepared"))
			continue
		}

		userID, err := e.platform.CreateStudent(ctx, *r.AccountPayload)
		if err != nil {
			sum.AccountsFailed++
			failures = append(failures, e.failEntry(r, StepAccountCreation, "", err.Error()))
			log.Printf("[provision] create account %s: %v", r.Email, err)
			continue
		}
		sum.AccountsCreated++

		appsAssigned := 0
		if r.AppAssignment != nil {
			if err := e.platform.AssignProfile(ctx, userID, *r.AppAssignment); err != nil {
				sum.AppsFailed++
				failures = append(failures, e.failEntry(r, StepAppAssignment, r.AppName, err.Error()))
				log.Printf("[provision] assign app %s to %s: %v", r.AppName, r.Email, err)
			} else {
				sum.AppsAssigned++
				appsAssigned++
			}
		}

		assessmentsAssigned := 0
		for _, a := range r.AssessmentAssignments {
			if err := e.platform.AssignProfile(ctx, userID, a.Payload); err != nil {
				sum.AssessmentsFailed++
				failures = append(failures, e.failEntry(r, StepAssessmentAssignment, a.Name, err.Error()))
				log.Printf("[provision] assign assessment %s to %s: %v", a.Name, r.Email, err)
				continue
			}
			sum.AssessmentsAssigned++
			assessmentsAssigned++
		}

		successes = append(successes, SuccessEntry{
			Timestamp:           e.now(),
			Email:               r.Email,
			Segment:             r.Segment,
			Grade:               r.GradeLabel(),
			AppName:             r.AppName,
			UserID:              userID,
			AppsAssigned:        appsAssigned,
			AssessmentsAssigned: assessmentsAssigned,
		})
	}

	return sum, successes, failures
}

// Simulate produces the counters and log entries a real run would,
// without touching the platform. Every prepared account counts as
// created.
func (e *Executor) Simulate(results []Result) (Summary, []SuccessEntry, []FailEntry) {
	var (
		sum       Summary
		successes []SuccessEntry
		failures  []FailEntry
	)

	for _, r := range results {
		for _, msg := range r.Errors {
			failures = append(failures, e.failEntry(r, StepProcessing, "", msg))
		}
		if r.AccountPayload == nil {
			sum.AccountsFailed++
			failures = append(failures, e.failEntry(r, StepAccountCreation, "", "no account payload prepared"))
			continue
		}
		sum.AccountsCreated++
		appsAssigned := 0
		if r.AppAssignment != nil {
			sum.AppsAssigned++
			appsAssigned++
		}
		sum.AssessmentsAssigned += len(r.AssessmentAssignments)

		successes = append(successes, SuccessEntry{
			Timestamp:           e.now(),
			Email:               r.Email,
			Segment:             r.Segment,
			Grade:               r.GradeLabel(),
			AppName:             r.AppName,
			UserID:              "simulated-no-account-created",
			AppsAssigned:        appsAssigned,
			AssessmentsAssigned: len(r.AssessmentAssignments),
		})
	}

	return sum, successes, failures
}

func (e *Executor) failEntry(r Result, step, name, msg string) FailEntry {
	return FailEntry{
		Timestamp: e.now(),
		Email:     r.Email,
		Segment:   r.Segment,
		Grade:     r.GradeLabel(),
		Step:      step,
		Name:      name,
		Error:     msg,
	}
}
