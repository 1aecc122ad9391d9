// Package sheets wraps the Google Sheets and Drive APIs behind the small
// surface the rest of the pipeline needs: worksheet reads and writes on
// the mapping spreadsheet, plus template copying and sharing for the
// per-student trackers.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Client bundles the Sheets and Drive services under one service-account
// credential.
type Client struct {
	sheets *sheetsapi.Service
	drive  *drive.Service
}

// NewClient authenticates with service-account JSON credentials. The
// spreadsheets scope covers worksheet reads and writes; the drive scope is
// needed to copy and share tracker files.
func NewClient(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON,
		sheetsapi.SpreadsheetsScope, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse Google credentials: %w", err)
	}

	sheetsSvc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create Sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create Drive service: %w", err)
	}

	return &Client{sheets: sheetsSvc, drive: driveSvc}, nil
}

// ReadTable returns all values of a worksheet as strings. A worksheet that
// does not exist is an error; an empty worksheet yields no rows.
func (c *Client) ReadTable(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error) {
	resp, err := c.sheets.Spreadsheets.Values.Get(spreadsheetID, worksheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", worksheet, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteTable replaces the worksheet's contents starting at A1.
func (c *Client) WriteTable(ctx context.Context, spreadsheetID, worksheet string, values [][]string) error {
	body := &sheetsapi.ValueRange{Values: toInterfaceRows(values)}
	_, err := c.sheets.Spreadsheets.Values.
		Update(spreadsheetID, worksheet+"!A1", body).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write worksheet %s: %w", worksheet, err)
	}
	return nil
}

// UpdateCell writes a single cell, addressed in A1 notation. An empty
// worksheet name addresses the spreadsheet's first sheet.
func (c *Client) UpdateCell(ctx context.Context, spreadsheetID, worksheet, cell, value string) error {
	rangeRef := cell
	if worksheet != "" {
		rangeRef = fmt.Sprintf("%s!%s", worksheet, cell)
	}
	body := &sheetsapi.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.sheets.Spreadsheets.Values.
		Update(spreadsheetID, rangeRef, body).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update cell %s: %w", rangeRef, err)
	}
	return nil
}

// EnsureWorksheet creates the worksheet if the spreadsheet lacks it.
func (c *Client) EnsureWorksheet(ctx context.Context, spreadsheetID, title string) error {
	meta, err := c.sheets.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.sheets.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet %s: %w", title, err)
	}
	return nil
}

// SpreadsheetTitle returns the spreadsheet's display name.
func (c *Client) SpreadsheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	meta, err := c.sheets.Spreadsheets.Get(spreadsheetID).Fields("properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get spreadsheet: %w", err)
	}
	if meta.Properties == nil {
		return "", nil
	}
	return meta.Properties.Title, nil
}

// CopyFile copies a Drive file into the target folder under a new name and
// returns the copy's id. Shared drives are supported.
func (c *Client) CopyFile(ctx context.Context, fileID, name, folderID string) (string, error) {
	meta := &drive.File{Name: name}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	copied, err := c.drive.Files.Copy(fileID, meta).
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("copy file %s: %w", fileID, err)
	}
	return copied.Id, nil
}

// Share grants a user write access without sending a notification email.
func (c *Client) Share(ctx context.Context, fileID, email string) error {
	perm := &drive.Permission{
		Type:         "user",
		Role:         "writer",
		EmailAddress: email,
	}
	_, err := c.drive.Permissions.Create(fileID, perm).
		SendNotificationEmail(false).
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("share file %s with %s: %w", fileID, email, err)
	}
	return nil
}

func toInterfaceRows(values [][]string) [][]interface{} {
	out := make([][]interface{}, len(values))
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
