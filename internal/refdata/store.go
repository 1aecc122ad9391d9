package refdata

import (
	"context"
	"fmt"
)

// SheetClient is the slice of the spreadsheet service the store needs.
// *sheets.Client satisfies it.
type SheetClient interface {
	ReadTable(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error)
	WriteTable(ctx context.Context, spreadsheetID, worksheet string, values [][]string) error
	EnsureWorksheet(ctx context.Context, spreadsheetID, title string) error
}

// Store reads reference tables from, and appends run logs to, the mapping
// spreadsheet. All entities are loaded fresh per run; nothing is cached
// across invocations.
type Store struct {
	sheets        SheetClient
	spreadsheetID string
}

// NewStore returns a Store bound to the mapping spreadsheet.
func NewStore(sheets SheetClient, spreadsheetID string) *Store {
	return &Store{sheets: sheets, spreadsheetID: spreadsheetID}
}

// Segments loads the segment configuration table.
func (s *Store) Segments(ctx context.Context) (SegmentTable, error) {
	values, err := s.sheets.ReadTable(ctx, s.spreadsheetID, WorksheetMainConfig)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", WorksheetMainConfig, err)
	}
	return ParseSegments(NewTable(values)), nil
}

// Assessments loads the assessment id table.
func (s *Store) Assessments(ctx context.Context) (AssessmentTable, error) {
	values, err := s.sheets.ReadTable(ctx, s.spreadsheetID, WorksheetAssessments)
	if err != nil {
		return AssessmentTable{}, fmt.Errorf("read %s: %w", WorksheetAssessments, err)
	}
	return ParseAssessments(NewTable(values)), nil
}

// Blacklist loads the blocked-email set.
func (s *Store) Blacklist(ctx context.Context) (map[string]struct{}, error) {
	values, err := s.sheets.ReadTable(ctx, s.spreadsheetID, WorksheetBlacklist)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", WorksheetBlacklist, err)
	}
	return ParseBlacklist(NewTable(values)), nil
}

// TrackerTemplates loads the tracker template catalog.
func (s *Store) TrackerTemplates(ctx context.Context) ([]TrackerTemplate, error) {
	values, err := s.sheets.ReadTable(ctx, s.spreadsheetID, WorksheetTrackers)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", WorksheetTrackers, err)
	}
	return ParseTrackerTemplates(NewTable(values)), nil
}

// AppendRows appends rows to a log worksheet with a single write: it reads
// the existing table, appends the new rows under it, and writes the whole
// table back. A missing worksheet is created first. When the worksheet is
// empty the given header becomes row one.
func (s *Store) AppendRows(ctx context.Context, worksheet string, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	if err := s.sheets.EnsureWorksheet(ctx, s.spreadsheetID, worksheet); err != nil {
		return fmt.Errorf("ensure %s: %w", worksheet, err)
	}

	existing, err := s.sheets.ReadTable(ctx, s.spreadsheetID, worksheet)
	if err != nil {
		return fmt.Errorf("read %s: %w", worksheet, err)
	}

	var combined [][]string
	if len(existing) == 0 {
		combined = append(combined, header)
	} else {
		combined = existing
	}
	combined = append(combined, rows...)

	if err := s.sheets.WriteTable(ctx, s.spreadsheetID, worksheet, combined); err != nil {
		return fmt.Errorf("write %s: %w", worksheet, err)
	}
	return nil
}
