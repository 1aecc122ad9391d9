// Package tracker provisions the per-student progress spreadsheet: it
// resolves the right template for the student's app, copies it into the
// trackers folder, fills in the student cells and shares the copy.
package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lwai/onboarding/internal/refdata"
)

// SheetOps is the Sheets/Drive surface the provisioner needs; satisfied
// by *sheets.Client.
type SheetOps interface {
	CopyFile(ctx context.Context, fileID, name, folderID string) (string, error)
	Share(ctx context.Context, fileID, email string) error
	SpreadsheetTitle(ctx context.Context, spreadsheetID string) (string, error)
	UpdateCell(ctx context.Context, spreadsheetID, worksheet, cell, value string) error
}

// Student identifies one provisioned account that needs a tracker.
type Student struct {
	Email      string
	Segment    string
	AppName    string
	Grade      *int // current grade; nil when unknown
	SignupDate time.Time
}

// Result is the tracker outcome for one student.
type Result struct {
	Email       string
	Segment     string
	CourseGrade string
	Link        string
	Err         string
}

// Succeeded reports whether a tracker link was produced.
func (r Result) Succeeded() bool {
	return r.Err == "" && r.Link != ""
}

// AllTrackersHeader is the all_trackers worksheet header.
var AllTrackersHeader = []string{"email", "segment", "course_grade", "tracker_link", "added_timestamp"}

// Row renders a successful result as an all_trackers worksheet row.
func (r Result) Row(now time.Time) []string {
	return []string{r.Email, r.Segment, r.CourseGrade, r.Link, now.Format("2006-01-02 15:04:05")}
}

// Provisioner copies tracker templates for newly created accounts.
type Provisioner struct {
	sheets    SheetOps
	templates []refdata.TrackerTemplate
	folderID  string
}

// NewProvisioner creates a provisioner over the template catalog. folderID
// is the Drive folder the copies land in; empty keeps them beside the
// template.
func NewProvisioner(sheets SheetOps, templates []refdata.TrackerTemplate, folderID string) *Provisioner {
	return &Provisioner{sheets: sheets, templates: templates, folderID: folderID}
}

// ProvisionAll creates one tracker per student, in order. A student whose
// tracker fails gets an error Result; the batch continues.
func (p *Provisioner) ProvisionAll(ctx context.Context, students []Student) []Result {
	out := make([]Result, 0, len(students))
	for _, s := range students {
		out = append(out, p.Provision(ctx, s))
	}
	return out
}

// Provision creates the tracker for one student.
func (p *Provisioner) Provision(ctx context.Context, s Student) Result {
	r := Result{Email: s.Email, Segment: s.Segment, CourseGrade: courseGrade(s.Grade)}

	if s.Email == "" || s.AppName == "" {
		r.Err = "missing email or app"
		return r
	}

	tpl, ok := resolveTemplate(p.templates, s.AppName, s.Segment, s.Grade)
	if !ok {
		r.Err = fmt.Sprintf("no tracker template found for app %q", s.AppName)
		return r
	}

	templateID := ExtractSpreadsheetID(tpl.Link)

	title, err := p.sheets.SpreadsheetTitle(ctx, templateID)
	if err != nil {
		r.Err = fmt.Sprintf("read template title: %v", err)
		return r
	}
	name := copyName(title, s.Email)

	copyID, err := p.sheets.CopyFile(ctx, templateID, name, p.folderID)
	if err != nil {
		r.Err = fmt.Sprintf("copy template: %v", err)
		return r
	}

	// B2 holds the student email, B3 the signup date, on the first sheet.
	if err := p.sheets.UpdateCell(ctx, copyID, "", "B2", s.Email); err != nil {
		r.Err = fmt.Sprintf("write email cell: %v", err)
		return r
	}
	if err := p.sheets.UpdateCell(ctx, copyID, "", "B3", s.SignupDate.Format("2006-01-02")); err != nil {
		r.Err = fmt.Sprintf("write signup date cell: %v", err)
		return r
	}

	// Sharing is best effort; the tracker is usable without it.
	if err := p.sheets.Share(ctx, copyID, s.Email); err != nil {
		log.Printf("[tracker] share with %s: %v", s.Email, err)
	}

	r.Link = "https://docs.google.com/spreadsheets/d/" + copyID
	return r
}

// resolveTemplate picks the most specific template for the app: exact
// segment and grade first, then segment only (the grade column is
// ignored at that level), then the app's first row with a link.
func resolveTemplate(templates []refdata.TrackerTemplate, app, segment string, grade *int) (refdata.TrackerTemplate, bool) {
	var appRows []refdata.TrackerTemplate
	for _, t := range templates {
		if t.App == app && t.Link != "" {
			appRows = append(appRows, t)
		}
	}
	if len(appRows) == 0 {
		return refdata.TrackerTemplate{}, false
	}

	if segment != "" && grade != nil {
		for _, t := range appRows {
			if t.Segment == segment && t.Grade != nil && *t.Grade == *grade {
				return t, true
			}
		}
	}
	if segment != "" {
		for _, t := range appRows {
			if t.Segment == segment {
				return t, true
			}
		}
	}
	return appRows[0], true
}

// copyName derives the copy's title from the template title: the
// "[Student Name]" placeholder is replaced by the student email, or the
// email is appended when the template has no placeholder.
func copyName(templateTitle, email string) string {
	const placeholder = "[Student Name]"
	if strings.Contains(templateTitle, placeholder) {
		return strings.ReplaceAll(templateTitle, placeholder, email)
	}
	return templateTitle + " - " + email
}

// ExtractSpreadsheetID pulls the spreadsheet id out of a Sheets URL; a
// value that is already a bare id passes through.
func ExtractSpreadsheetID(url string) string {
	const marker = "/spreadsheets/d/"
	if idx := strings.Index(url, marker); idx >= 0 {
		id := url[idx+len(marker):]
		for _, sep := range []string{"/", "?", "#"} {
			if cut := strings.Index(id, sep); cut >= 0 {
				id = id[:cut]
			}
		}
		return id
	}
	return url
}

func courseGrade(grade *int) string {
	if grade == nil {
		return "Unknown"
	}
	return fmt.Sprintf("Grade %d", *grade)
}
