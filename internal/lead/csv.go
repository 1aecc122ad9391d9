package lead

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Export column names. The leads file is the HubSpot contact export; the
// accounts file is the platform's main export.
const (
	colPrimaryEmail = "hs_primary_email"
	colEmail        = "hs_email"
	colFirstName    = "hs_firstname"
	colLastName     = "hs_lastname"
	colGradeNum     = "hs_StudentGradeNum"
	colAddedAt      = "hs_added_at"
	colSegment      = "segment_name"
	colBirthDate    = "hs_students_birthdate"

	colAccountEmail = "tb_email"
)

// DecodeLeads parses the CRM contact export (delimited text with a header
// row) into Lead records. Unknown columns are ignored; missing columns
// yield zero values rather than errors, matching the loosely-typed export.
func DecodeLeads(r io.Reader) ([]Lead, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode leads: %w", err)
	}

	leads := make([]Lead, 0, len(rows))
	for _, row := range rows {
		l := Lead{
			PrimaryEmail: field(header, row, colPrimaryEmail),
			Email:        field(header, row, colEmail),
			FirstName:    field(header, row, colFirstName),
			LastName:     field(header, row, colLastName),
			Segment:      field(header, row, colSegment),
			BirthDate:    field(header, row, colBirthDate),
		}
		if g, ok := parseGrade(field(header, row, colGradeNum)); ok {
			l.LastCompletedGrade = &g
		}
		l.AddedAt = parseEpochMillis(field(header, row, colAddedAt))
		leads = append(leads, l)
	}
	return leads, nil
}

// DecodeAccounts parses the platform account export into the email
// membership set used by the existing-accounts filter.
func DecodeAccounts(r io.Reader) (AccountSet, error) {
	header, rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		emails = append(emails, field(header, row, colAccountEmail))
	}
	return NewAccountSet(emails), nil
}

func readTable(r io.Reader) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return map[string]int{}, nil, nil
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.TrimSpace(name)] = i
	}
	return header, records[1:], nil
}

func field(header map[string]int, row []string, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseGrade accepts both integer and float-formatted grade numbers
// ("5", "5.0"); anything non-numeric is treated as unknown.
func parseGrade(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// parseEpochMillis tolerates the export writing timestamps as floats.
// Unparseable values come back as 0 and fail the date filter's sanity floor.
func parseEpochMillis(raw string) int64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
