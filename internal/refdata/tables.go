// Package refdata parses the mapping spreadsheet's worksheets into the
// typed reference tables that drive filtering and provisioning: segment
// configuration, assessment ids, the email blacklist and the tracker
// template catalog. It also appends run logs back to the same spreadsheet.
package refdata

import (
	"strconv"
	"strings"
)

// Worksheet names inside the mapping spreadsheet.
const (
	WorksheetMainConfig  = "main_config"
	WorksheetAssessments = "assessment_ids"
	WorksheetBlacklist   = "blacklist"
	WorksheetTrackers    = "program_trackers"
	WorksheetSuccessLog  = "success_log"
	WorksheetFailLog     = "fail_log"
	WorksheetAllTrackers = "all_trackers"
)

// Segment is one row of main_config: the cohort's app, whether assessments
// are assigned, the acceptable current-grade range and the active flag.
type Segment struct {
	Name               string
	App                string
	AssessmentsEnabled bool
	MinGrade           int
	MaxGrade           int
	Active             bool
}

// GradeInRange reports whether grade falls in this segment's inclusive range.
func (s Segment) GradeInRange(grade int) bool {
	return grade >= s.MinGrade && grade <= s.MaxGrade
}

// SegmentTable maps segment name to its configuration. When the worksheet
// repeats a segment name, the first row wins.
type SegmentTable map[string]Segment

// Lookup returns the segment's configuration.
func (t SegmentTable) Lookup(name string) (Segment, bool) {
	s, ok := t[name]
	return s, ok
}

// Assessment is one row of assessment_ids. Grade is nil when the row
// applies to every grade in its segment; Segment is empty when the
// worksheet has no segment column.
type Assessment struct {
	ID      string
	Name    string
	Segment string
	Grade   *int
}

// AssessmentTable holds the assessment rows in worksheet order.
type AssessmentTable struct {
	Entries    []Assessment
	HasSegment bool
}

// Match returns the assessments applicable to a lead, in table order:
// rows whose grade is absent or equals the lead's current grade, and —
// when the table carries a segment column — whose segment matches.
// A nil grade (unknown current grade) matches only grade-less rows.
func (t AssessmentTable) Match(segment string, grade *int) []Assessment {
	var out []Assessment
	for _, a := range t.Entries {
		if a.Grade != nil && (grade == nil || *a.Grade != *grade) {
			continue
		}
		if t.HasSegment && a.Segment != segment {
			continue
		}
		out = append(out, a)
	}
	return out
}

// TrackerTemplate is one row of program_trackers: a template spreadsheet
// link keyed by app, optionally narrowed by segment and grade.
type TrackerTemplate struct {
	App     string
	Segment string
	Grade   *int
	Link    string
}

// Table is a worksheet read as a header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable builds a Table from raw worksheet values; empty input yields an
// empty table.
func NewTable(values [][]string) Table {
	if len(values) == 0 {
		return Table{}
	}
	return Table{Header: values[0], Rows: values[1:]}
}

func (t Table) columnIndex(names ...string) int {
	for _, name := range names {
		for i, h := range t.Header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func (t Table) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ParseSegments reads the main_config worksheet.
func ParseSegments(t Table) SegmentTable {
	name := t.columnIndex("segment")
	app := t.columnIndex("app")
	assessments := t.columnIndex("assessments")
	minGrade := t.columnIndex("min_grade")
	maxGrade := t.columnIndex("max_grade")
	active := t.columnIndex("active")

	table := make(SegmentTable)
	for _, row := range t.Rows {
		segName := t.cell(row, name)
		if segName == "" {
			continue
		}
		if _, exists := table[segName]; exists {
			continue
		}
		seg := Segment{
			Name:               segName,
			App:                t.cell(row, app),
			AssessmentsEnabled: parseFlag(t.cell(row, assessments)),
			Active:             parseFlag(t.cell(row, active)),
		}
		if g, ok := parseNumber(t.cell(row, minGrade)); ok {
			seg.MinGrade = g
		}
		if g, ok := parseNumber(t.cell(row, maxGrade)); ok {
			seg.MaxGrade = g
		}
		table[segName] = seg
	}
	return table
}

// ParseAssessments reads the assessment_ids worksheet. The id and name
// columns have drifted over time, so each is resolved through an ordered
// list of candidate headers; the first present non-empty value wins.
func ParseAssessments(t Table) AssessmentTable {
	idIdx := []int{t.columnIndex("initial_assessment_id"), t.columnIndex("ID"), t.columnIndex("id")}
	nameIdx := []int{t.columnIndex("assessment_name"), t.columnIndex("assessment"), t.columnIndex("name")}
	segIdx := t.columnIndex("segment")
	gradeIdx := t.columnIndex("grade")

	out := AssessmentTable{HasSegment: segIdx >= 0}
	for _, row := range t.Rows {
		a := Assessment{
			ID:      firstCell(t, row, idIdx),
			Name:    firstCell(t, row, nameIdx),
			Segment: t.cell(row, segIdx),
		}
		if g, ok := parseNumber(t.cell(row, gradeIdx)); ok {
			a.Grade = &g
		}
		if a.ID == "" && a.Name == "" {
			continue
		}
		out.Entries = append(out.Entries, a)
	}
	return out
}

// ParseBlacklist reads the blacklist worksheet: the first column holds the
// blocked emails, compared case-insensitively.
func ParseBlacklist(t Table) map[string]struct{} {
	set := make(map[string]struct{})
	for _, row := range t.Rows {
		email := strings.ToLower(t.cell(row, 0))
		if email != "" {
			set[email] = struct{}{}
		}
	}
	return set
}

// ParseTrackerTemplates reads the program_trackers worksheet. The link
// column has three historical names.
func ParseTrackerTemplates(t Table) []TrackerTemplate {
	app := t.columnIndex("App")
	segment := t.columnIndex("Segment")
	grade := t.columnIndex("Grade")
	link := []int{t.columnIndex("Tracker"), t.columnIndex("tracker"), t.columnIndex("tracker_url")}

	var out []TrackerTemplate
	for _, row := range t.Rows {
		tpl := TrackerTemplate{
			App:     t.cell(row, app),
			Segment: t.cell(row, segment),
			Link:    firstCell(t, row, link),
		}
		if g, ok := parseNumber(t.cell(row, grade)); ok {
			tpl.Grade = &g
		}
		if tpl.App == "" {
			continue
		}
		out = append(out, tpl)
	}
	return out
}

func firstCell(t Table, row []string, indexes []int) string {
	for _, idx := range indexes {
		if v := t.cell(row, idx); v != "" {
			return v
		}
	}
	return ""
}

// parseFlag treats "1", "1.0", "true" and "TRUE" as set, everything else
// (including blanks) as unset, matching how the sheet encodes booleans.
func parseFlag(raw string) bool {
	if raw == "" {
		return false
	}
	if strings.EqualFold(raw, "true") {
		return true
	}
	f, err := strconv.ParseFloat(raw, 64)
	return err == nil && f == 1
}

func parseNumber(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
