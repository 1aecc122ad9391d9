package provision

import (
	"strconv"
	"time"

	"github.com/lwai/onboarding/internal/lead"
	"github.com/lwai/onboarding/internal/timeback"
)

// Result is the processing outcome for one eligible lead: the prepared
// payloads plus accumulated non-fatal errors. A recorded error suppresses
// the payload it concerns but never aborts the lead or the batch.
type Result struct {
	Lead       lead.Lead
	Email      string
	Segment    string
	Grade      *int // current grade; nil when unknown
	SignupDate time.Time
	Name       string
	FirstName  string

	AccountPayload        *timeback.AccountPayload
	AppAssignment         *timeback.ProfileAssignment
	AppName               string
	AppID                 string
	AssessmentAssignments []AssessmentAssignment

	Errors []string
}

// AssessmentAssignment pairs an assignment payload with the assessment's
// display name for logging.
type AssessmentAssignment struct {
	Name    string
	Payload timeback.ProfileAssignment
}

// GradeLabel renders the current grade for logs and notifications.
func (r Result) GradeLabel() string {
	if r.Grade == nil {
		return "Unknown"
	}
	return strconv.Itoa(*r.Grade)
}

// Execution log steps. Payload-preparation problems are logged under
// StepProcessing so they never read as platform failures.
const (
	StepProcessing           = "processing"
	StepAccountCreation      = "account_creation"
	StepAppAssignment        = "app_assignment"
	StepAssessmentAssignment = "assessment_assignment"
)

// Summary aggregates per-step counters for one run.
type Summary struct {
	AccountsCreated     int
	AccountsFailed      int
	AppsAssigned        int
	AppsFailed          int
	AssessmentsAssigned int
	AssessmentsFailed   int
}

// SuccessEntry is one success-log row: a lead whose account was created,
// regardless of how its assignments fared.
type SuccessEntry struct {
	Timestamp           time.Time
	Email               string
	Segment             string
	Grade               string
	AppName             string
	UserID              string
	AppsAssigned        int
	AssessmentsAssigned int
}

// SuccessLogHeader is the success_log worksheet header.
var SuccessLogHeader = []string{"timestamp", "email", "segment", "grade", "app_name", "user_id", "apps_assigned", "assessments_assigned"}

// Row renders the entry as a success_log worksheet row.
func (e SuccessEntry) Row() []string {
	return []string{
		e.Timestamp.Format(time.RFC3339),
		e.Email,
		e.Segment,
		e.Grade,
		e.AppName,
		e.UserID,
		strconv.Itoa(e.AppsAssigned),
		strconv.Itoa(e.AssessmentsAssigned),
	}
}

// FailEntry is one fail-log row for a single failed step.
type FailEntry struct {
	Timestamp time.Time
	Email     string
	Segment   string
	Grade     string
	Step      string
	Name      string // app or assessment name, when applicable
	Error     string
}

// FailLogHeader is the fail_log worksheet header.
var FailLogHeader = []string{"timestamp", "email", "segment", "grade", "step", "name", "error"}

// Row renders the entry as a fail_log worksheet row.
func (e FailEntry) Row() []string {
	return []string{
		e.Timestamp.Format(time.RFC3339),
		e.Email,
		e.Segment,
		e.Grade,
		e.Step,
		e.Name,
		e.Error,
	}
}
