// Package provision turns filtered leads into platform payloads and
// executes them: one account upsert plus app and assessment profile
// assignments per lead, with per-step counters and log entries.
package provision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lwai/onboarding/internal/lead"
	"github.com/lwai/onboarding/internal/refdata"
	"github.com/lwai/onboarding/internal/timeback"
)

// Builder resolves each lead against the segment config, the assessment
// table and the live application catalog, producing the payloads the
// executor will send. Resolution problems are recorded on the Result and
// never abort the batch.
type Builder struct {
	segments    refdata.SegmentTable
	assessments refdata.AssessmentTable
	apps        map[string]string // name -> platform applicationId
}

// NewBuilder creates a payload builder over the loaded reference tables.
func NewBuilder(segments refdata.SegmentTable, assessments refdata.AssessmentTable, apps map[string]string) *Builder {
	return &Builder{segments: segments, assessments: assessments, apps: apps}
}

// BuildAll prepares one Result per lead, preserving input order.
func (b *Builder) BuildAll(leads []lead.Lead, now time.Time) []Result {
	out := make([]Result, 0, len(leads))
	for _, l := range leads {
		out = append(out, b.Build(l, now))
	}
	return out
}

// Build prepares the payloads for one lead. The account payload is always
// produced; assignment payloads require the segment to resolve to a known
// application.
func (b *Builder) Build(l lead.Lead, now time.Time) Result {
	r := Result{
		Lead:       l,
		Email:      l.ResolvedEmail(),
		Segment:    l.Segment,
		SignupDate: l.SignupDate(now),
		Name:       l.FullName(),
		FirstName:  l.FirstName,
	}
	if g, ok := l.CurrentGrade(); ok {
		grade := g
		r.Grade = &grade
	}

	r.AccountPayload = buildAccountPayload(l, r.Email, r.Grade)

	seg, ok := b.segments.Lookup(l.Segment)
	if !ok {
		r.Errors = append(r.Errors, fmt.Sprintf("segment %q not found in config", l.Segment))
		return r
	}
	if seg.App == "" {
		r.Errors = append(r.Errors, fmt.Sprintf("no app configured for segment %q", l.Segment))
		return r
	}
	r.AppName = seg.App

	appID, ok := b.apps[seg.App]
	if !ok {
		r.Errors = append(r.Errors, fmt.Sprintf("app %q not found in platform catalog", seg.App))
		return r
	}
	r.AppID = appID
	r.AppAssignment = &timeback.ProfileAssignment{
		ProfileID:     uuid.NewString(),
		ApplicationID: appID,
		ProfileType:   timeback.ProfileTypeLearningApp,
		VendorID:      timeback.VendorID,
		Description:   fmt.Sprintf("Automated assignment via TimeBack Platform API - %s", seg.App),
	}

	if !seg.AssessmentsEnabled {
		return r
	}
	for _, a := range b.assessments.Match(l.Segment, r.Grade) {
		if a.ID == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("assessment %q has no id, skipping", a.Name))
			continue
		}
		r.AssessmentAssignments = append(r.AssessmentAssignments, AssessmentAssignment{
			Name: a.Name,
			Payload: timeback.ProfileAssignment{
				ProfileID:     uuid.NewString(),
				ApplicationID: a.ID,
				ProfileType:   timeback.ProfileTypeLearningApp,
				VendorID:      timeback.VendorID,
				Description:   fmt.Sprintf("Automated assessment assignment - %s", a.Name),
			},
		})
	}
	return r
}

// buildAccountPayload assembles the account upsert body. The sourcedId is
// generated locally; the server may answer with its own on conflict.
func buildAccountPayload(l lead.Lead, email string, grade *int) *timeback.AccountPayload {
	student := timeback.Student{
		SourcedID:          uuid.NewString(),
		Email:              email,
		Username:           email,
		Status:             "active",
		EnabledUser:        "true",
		GivenName:          l.FirstName,
		FamilyName:         l.LastName,
		PreferredFirstName: l.FirstName,
		PrimaryOrg: timeback.Org{
			Href:      timeback.OrgHref,
			SourcedID: timeback.OrgSourcedID,
			Type:      "org",
		},
	}
	if grade != nil {
		student.Grades = []string{lead.GradeString(*grade)}
	}
	if bd, ok := lead.NormalizeBirthDate(l.BirthDate); ok {
		student.Demographics = &timeback.Demographics{BirthDate: bd}
	}
	return &timeback.AccountPayload{Student: student}
}
