package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwai/onboarding/internal/refdata"
)

func intPtr(i int) *int { return &i }

type cellWrite struct {
	spreadsheetID string
	cell          string
	value         string
}

type fakeSheets struct {
	titles   map[string]string
	copyErr  error
	shareErr error

	copied []string // "templateID->name@folder"
	cells  []cellWrite
	shared []string
}

func (f *fakeSheets) SpreadsheetTitle(_ context.Context, id string) (string, error) {
	title, ok := f.titles[id]
	if !ok {
		return "", errors.New("not found")
	}
	return title, nil
}

func (f *fakeSheets) CopyFile(_ context.Context, fileID, name, folderID string) (string, error) {
	if f.copyErr != nil {
		return "", f.copyErr
	}
	f.copied = append(f.copied, fileID+"->"+name+"@"+folderID)
	return "copy-of-" + fileID, nil
}

func (f *fakeSheets) UpdateCell(_ context.Context, spreadsheetID, worksheet, cell, value string) error {
	f.cells = append(f.cells, cellWrite{spreadsheetID, cell, value})
	return nil
}

func (f *fakeSheets) Share(_ context.Context, fileID, email string) error {
	if f.shareErr != nil {
		return f.shareErr
	}
	f.shared = append(f.shared, fileID+"/"+email)
	return nil
}

func templates() []refdata.TrackerTemplate {
	return []refdata.TrackerTemplate{
		{App: "Athena", Segment: "Alpha", Link: "https://docs.google.com/spreadsheets/d/tpl-alpha/edit"},
		{App: "Athena", Segment: "Alpha", Grade: intPtr(5), Link: "https://docs.google.com/spreadsheets/d/tpl-alpha-5/edit"},
		{App: "Athena", Link: "https://docs.google.com/spreadsheets/d/tpl-generic/edit"},
		{App: "TrashCat", Link: "https://docs.google.com/spreadsheets/d/tpl-trashcat/edit"},
	}
}

func student() Student {
	return Student{
		Email:      "kid@example.com",
		Segment:    "Alpha",
		AppName:    "Athena",
		Grade:      intPtr(5),
		SignupDate: time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC),
	}
}

func TestResolveTemplate_MostSpecificWins(t *testing.T) {
	tests := []struct {
		name     string
		segment  string
		grade    *int
		wantLink string
	}{
		{"segment and grade", "Alpha", intPtr(5), "https://docs.google.com/spreadsheets/d/tpl-alpha-5/edit"},
		{"grade mismatch falls to first segment row", "Alpha", intPtr(7), "https://docs.google.com/spreadsheets/d/tpl-alpha/edit"},
		{"unknown grade falls to first segment row", "Alpha", nil, "https://docs.google.com/spreadsheets/d/tpl-alpha/edit"},
		{"unknown segment falls to first app row", "Gamma", intPtr(5), "https://docs.google.com/spreadsheets/d/tpl-alpha/edit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, ok := resolveTemplate(templates(), "Athena", tt.segment, tt.grade)
			require.True(t, ok)
			assert.Equal(t, tt.wantLink, tpl.Link)
		})
	}

	_, ok := resolveTemplate(templates(), "NoSuchApp", "Alpha", intPtr(5))
	assert.False(t, ok)
}

// A segment row whose grade does not match still beats the app-wide row:
// the grade column only matters when it matches exactly.
func TestResolveTemplate_SegmentRowIgnoresGrade(t *testing.T) {
	tpls := []refdata.TrackerTemplate{
		{App: "Athena", Link: "https://docs.google.com/spreadsheets/d/tpl-generic/edit"},
		{App: "Athena", Segment: "Alpha", Grade: intPtr(5), Link: "https://docs.google.com/spreadsheets/d/tpl-alpha-5/edit"},
	}

	tpl, ok := resolveTemplate(tpls, "Athena", "Alpha", intPtr(7))
	require.True(t, ok)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/tpl-alpha-5/edit", tpl.Link)
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://docs.google.com/spreadsheets/d/abc-123_X/edit#gid=0", "abc-123_X"},
		{"https://docs.google.com/spreadsheets/d/abc?usp=sharing", "abc"},
		{"https://docs.google.com/spreadsheets/d/bare", "bare"},
		{"already-an-id", "already-an-id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSpreadsheetID(tt.in))
	}
}

func TestProvision_FullFlow(t *testing.T) {
	sheets := &fakeSheets{titles: map[string]string{"tpl-alpha-5": "[Student Name] Progress"}}
	p := NewProvisioner(sheets, templates(), "folder-1")

	r := p.Provision(context.Background(), student())

	require.True(t, r.Succeeded(), r.Err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/copy-of-tpl-alpha-5", r.Link)
	assert.Equal(t, "Grade 5", r.CourseGrade)

	require.Len(t, sheets.copied, 1)
	assert.Equal(t, "tpl-alpha-5->kid@example.com Progress@folder-1", sheets.copied[0])

	require.Len(t, sheets.cells, 2)
	assert.Equal(t, cellWrite{"copy-of-tpl-alpha-5", "B2", "kid@example.com"}, sheets.cells[0])
	assert.Equal(t, cellWrite{"copy-of-tpl-alpha-5", "B3", "2026-08-20"}, sheets.cells[1])

	require.Len(t, sheets.shared, 1)
	assert.Equal(t, "copy-of-tpl-alpha-5/kid@example.com", sheets.shared[0])
}

func TestProvision_TitleWithoutPlaceholder(t *testing.T) {
	sheets := &fakeSheets{titles: map[string]string{"tpl-alpha-5": "Athena Tracker"}}
	p := NewProvisioner(sheets, templates(), "")

	r := p.Provision(context.Background(), student())

	require.True(t, r.Succeeded(), r.Err)
	assert.Equal(t, "tpl-alpha-5->Athena Tracker - kid@example.com@", sheets.copied[0])
}

func TestProvision_ShareFailureIsNotFatal(t *testing.T) {
	sheets := &fakeSheets{
		titles:   map[string]string{"tpl-alpha-5": "T"},
		shareErr: errors.New("permission denied"),
	}
	p := NewProvisioner(sheets, templates(), "")

	r := p.Provision(context.Background(), student())
	assert.True(t, r.Succeeded(), r.Err)
}

func TestProvision_NoTemplate(t *testing.T) {
	p := NewProvisioner(&fakeSheets{}, nil, "")

	r := p.Provision(context.Background(), student())
	assert.False(t, r.Succeeded())
	assert.Contains(t, r.Err, "Athena")
}

func TestProvision_CopyFailure(t *testing.T) {
	sheets := &fakeSheets{
		titles:  map[string]string{"tpl-alpha-5": "T"},
		copyErr: errors.New("quota exceeded"),
	}
	p := NewProvisioner(sheets, templates(), "")

	r := p.Provision(context.Background(), student())
	assert.False(t, r.Succeeded())
	assert.Contains(t, r.Err, "quota exceeded")
	assert.Empty(t, sheets.cells)
}

func TestResultRow(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	r := Result{Email: "a@x.com", Segment: "Alpha", CourseGrade: "Grade 5", Link: "link"}

	row := r.Row(now)
	require.Len(t, row, len(AllTrackersHeader))
	assert.Equal(t, "2026-08-31 10:30:00", row[4])
}
