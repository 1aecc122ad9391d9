package provision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwai/onboarding/internal/lead"
	"github.com/lwai/onboarding/internal/refdata"
	"github.com/lwai/onboarding/internal/timeback"
)

func intPtr(i int) *int { return &i }

func testSegments() refdata.SegmentTable {
	return refdata.SegmentTable{
		"Alpha": {Name: "Alpha", App: "Athena", AssessmentsEnabled: true, MinGrade: 3, MaxGrade: 8, Active: true},
		"NoApp": {Name: "NoApp", Active: true},
	}
}

func testAssessments() refdata.AssessmentTable {
	return refdata.AssessmentTable{
		HasSegment: true,
		Entries: []refdata.Assessment{
			{ID: "assess-5", Name: "Math Placement G5", Segment: "Alpha", Grade: intPtr(5)},
			{ID: "assess-any", Name: "Reading Baseline", Segment: "Alpha"},
			{ID: "other-seg", Name: "Other", Segment: "Beta"},
		},
	}
}

func testLead() lead.Lead {
	return lead.Lead{
		PrimaryEmail:       "Kid@Example.com",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Segment:            "Alpha",
		LastCompletedGrade: intPtr(4), // current grade 5
		AddedAt:            time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC).UnixMilli(),
		BirthDate:          "03-14-2016",
	}
}

func TestBuild_FullResolution(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	r := b.Build(testLead(), now)

	require.Empty(t, r.Errors)
	assert.Equal(t, "kid@example.com", r.Email)
	require.NotNil(t, r.Grade)
	assert.Equal(t, 5, *r.Grade)

	require.NotNil(t, r.AccountPayload)
	s := r.AccountPayload.Student
	assert.NotEmpty(t, s.SourcedID)
	assert.Equal(t, "kid@example.com", s.Email)
	assert.Equal(t, "kid@example.com", s.Username)
	assert.Equal(t, "active", s.Status)
	assert.Equal(t, "Ada", s.GivenName)
	assert.Equal(t, "Lovelace", s.FamilyName)
	assert.Equal(t, []string{"5"}, s.Grades)
	assert.Equal(t, timeback.OrgSourcedID, s.PrimaryOrg.SourcedID)
	require.NotNil(t, s.Demographics)
	assert.Equal(t, "2016-03-14", s.Demographics.BirthDate)

	assert.Equal(t, "Athena", r.AppName)
	require.NotNil(t, r.AppAssignment)
	assert.Equal(t, "athena-id", r.AppAssignment.ApplicationID)
	assert.Equal(t, timeback.ProfileTypeLearningApp, r.AppAssignment.ProfileType)
	assert.Equal(t, timeback.VendorID, r.AppAssignment.VendorID)
	assert.NotEmpty(t, r.AppAssignment.ProfileID)
	assert.Equal(t, "Automated assignment via TimeBack Platform API - Athena", r.AppAssignment.Description)

	// Grade-5 row plus the grade-less row; the other segment's row is skipped.
	require.Len(t, r.AssessmentAssignments, 2)
	assert.Equal(t, "Math Placement G5", r.AssessmentAssignments[0].Name)
	assert.Equal(t, "assess-5", r.AssessmentAssignments[0].Payload.ApplicationID)
	assert.Equal(t, "Automated assessment assignment - Math Placement G5", r.AssessmentAssignments[0].Payload.Description)
	assert.Equal(t, "Reading Baseline", r.AssessmentAssignments[1].Name)
}

func TestBuild_BlankAssessmentIDRecordsError(t *testing.T) {
	assessments := refdata.AssessmentTable{Entries: []refdata.Assessment{{Name: "Broken Row"}}}
	b := NewBuilder(testSegments(), assessments, map[string]string{"Athena": "athena-id"})

	r := b.Build(testLead(), time.Now())

	assert.Empty(t, r.AssessmentAssignments)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "Broken Row")
}

func TestBuild_UnknownSegmentStillBuildsAccount(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), nil)
	l := testLead()
	l.Segment = "Gamma"

	r := b.Build(l, time.Now())

	require.NotNil(t, r.AccountPayload)
	assert.Nil(t, r.AppAssignment)
	assert.Empty(t, r.AssessmentAssignments)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "Gamma")
}

func TestBuild_SegmentWithoutApp(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), nil)
	l := testLead()
	l.Segment = "NoApp"

	r := b.Build(l, time.Now())

	require.NotNil(t, r.AccountPayload)
	assert.Nil(t, r.AppAssignment)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "no app configured")
}

func TestBuild_AppMissingFromCatalog(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{})

	r := b.Build(testLead(), time.Now())

	require.NotNil(t, r.AccountPayload)
	assert.Nil(t, r.AppAssignment)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "Athena")
}

func TestBuild_UnknownGradeAndBirthDateOmitted(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	l := testLead()
	l.LastCompletedGrade = nil
	l.BirthDate = "garbage"

	r := b.Build(l, time.Now())

	assert.Nil(t, r.Grade)
	assert.Equal(t, "Unknown", r.GradeLabel())
	require.NotNil(t, r.AccountPayload)
	assert.Nil(t, r.AccountPayload.Student.Grades)
	assert.Nil(t, r.AccountPayload.Student.Demographics)
	// Unknown grade matches only the grade-less assessment row.
	require.Len(t, r.AssessmentAssignments, 1)
	assert.Equal(t, "Reading Baseline", r.AssessmentAssignments[0].Name)
}

// fakePlatform records calls and fails on request.
type fakePlatform struct {
	createErr      map[string]error // keyed by email
	assignErr      map[string]error // keyed by applicationId
	created        []string
	assigned       []string
	serverSourceID string
}

func (f *fakePlatform) CreateStudent(_ context.Context, p timeback.AccountPayload) (string, error) {
	if err := f.createErr[p.Student.Email]; err != nil {
		return "", err
	}
	f.created = append(f.created, p.Student.Email)
	if f.serverSourceID != "" {
		return f.serverSourceID, nil
	}
	return p.Student.SourcedID, nil
}

func (f *fakePlatform) AssignProfile(_ context.Context, userID string, a timeback.ProfileAssignment) error {
	if err := f.assignErr[a.ApplicationID]; err != nil {
		return err
	}
	f.assigned = append(f.assigned, userID+"/"+a.ApplicationID)
	return nil
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestExecute_FullRun(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	results := b.BuildAll([]lead.Lead{testLead()}, time.Now())

	platform := &fakePlatform{serverSourceID: "server-uid"}
	e := NewExecutor(platform)
	e.SetNow(fixedClock())

	sum, successes, failures := e.Execute(context.Background(), results)

	assert.Equal(t, Summary{AccountsCreated: 1, AppsAssigned: 1, AssessmentsAssigned: 2}, sum)
	assert.Empty(t, failures)
	require.Len(t, successes, 1)
	assert.Equal(t, "kid@example.com", successes[0].Email)
	assert.Equal(t, "server-uid", successes[0].UserID)
	assert.Equal(t, "5", successes[0].Grade)
	assert.Equal(t, 1, successes[0].AppsAssigned)
	assert.Equal(t, 2, successes[0].AssessmentsAssigned)

	// Assignments are scoped to the server-confirmed user id.
	for _, call := range platform.assigned {
		assert.True(t, strings.HasPrefix(call, "server-uid/"), call)
	}
}

func TestExecute_AccountFailureSkipsAssignments(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	results := b.BuildAll([]lead.Lead{testLead()}, time.Now())

	platform := &fakePlatform{createErr: map[string]error{"kid@example.com": errors.New("HTTP 400: bad payload")}}
	e := NewExecutor(platform)
	e.SetNow(fixedClock())

	sum, successes, failures := e.Execute(context.Background(), results)

	assert.Equal(t, Summary{AccountsFailed: 1}, sum)
	assert.Empty(t, successes)
	assert.Empty(t, platform.assigned)
	require.Len(t, failures, 1)
	assert.Equal(t, StepAccountCreation, failures[0].Step)
	assert.Contains(t, failures[0].Error, "HTTP 400")
}

func TestExecute_AssignmentFailuresDoNotStopLead(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	results := b.BuildAll([]lead.Lead{testLead()}, time.Now())

	platform := &fakePlatform{assignErr: map[string]error{
		"athena-id": errors.New("HTTP 404"),
		"assess-5":  errors.New("HTTP 500"),
	}}
	e := NewExecutor(platform)
	e.SetNow(fixedClock())

	sum, successes, failures := e.Execute(context.Background(), results)

	assert.Equal(t, Summary{AccountsCreated: 1, AppsFailed: 1, AssessmentsAssigned: 1, AssessmentsFailed: 1}, sum)

	// The account still lands in the success log with partial counts.
	require.Len(t, successes, 1)
	assert.Equal(t, 0, successes[0].AppsAssigned)
	assert.Equal(t, 1, successes[0].AssessmentsAssigned)

	require.Len(t, failures, 2)
	assert.Equal(t, StepAppAssignment, failures[0].Step)
	assert.Equal(t, "Athena", failures[0].Name)
	assert.Equal(t, StepAssessmentAssignment, failures[1].Step)
	assert.Equal(t, "Math Placement G5", failures[1].Name)
}

func TestExecute_SegmentErrorLoggedButAccountStillCreated(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), nil)
	l := testLead()
	l.Segment = "Gamma"
	results := b.BuildAll([]lead.Lead{l}, time.Now())

	platform := &fakePlatform{}
	e := NewExecutor(platform)
	e.SetNow(fixedClock())

	sum, successes, failures := e.Execute(context.Background(), results)

	assert.Equal(t, 1, sum.AccountsCreated)
	assert.Equal(t, 0, sum.AccountsFailed)
	require.Len(t, successes, 1)
	require.Len(t, failures, 1)
	// The account was created; the missing segment is a processing
	// problem, not an account failure.
	assert.Equal(t, StepProcessing, failures[0].Step)
	assert.Contains(t, failures[0].Error, "Gamma")
}

func TestSimulate(t *testing.T) {
	b := NewBuilder(testSegments(), testAssessments(), map[string]string{"Athena": "athena-id"})
	results := b.BuildAll([]lead.Lead{testLead()}, time.Now())

	e := NewExecutor(nil)
	e.SetNow(fixedClock())

	sum, successes, failures := e.Simulate(results)

	assert.Equal(t, Summary{AccountsCreated: 1, AppsAssigned: 1, AssessmentsAssigned: 2}, sum)
	assert.Empty(t, failures)
	require.Len(t, successes, 1)
	assert.Equal(t, "simulated-no-account-created", successes[0].UserID)
}

func TestLogRowShapes(t *testing.T) {
	ts := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	s := SuccessEntry{Timestamp: ts, Email: "a@x.com", Segment: "Alpha", Grade: "5",
		AppName: "Athena", UserID: "u", AppsAssigned: 1, AssessmentsAssigned: 2}
	assert.Equal(t, len(SuccessLogHeader), len(s.Row()))
	assert.Equal(t, "2026-08-31T10:00:00Z", s.Row()[0])
	assert.Equal(t, "2", s.Row()[7])

	f := FailEntry{Timestamp: ts, Email: "a@x.com", Segment: "Alpha", Grade: "5",
		Step: StepAppAssignment, Name: "Athena", Error: "HTTP 404"}
	assert.Equal(t, len(FailLogHeader), len(f.Row()))
	assert.Equal(t, StepAppAssignment, f.Row()[4])
}
