package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ports "budgetflow/internal/sheets"

	"budgetflow/internal/cache"
	"budgetflow/internal/table"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	valueRenderUnformatted = "UNFORMATTED_VALUE"
	dateRenderSerial       = "SERIAL_NUMBER"
	inputUserEntered       = "USER_ENTERED"
)

// Options locates the collaborator objects in Drive.
type Options struct {
	ProjectFolderID        string
	OutputSpreadsheetID    string
	CatalogSpreadsheetID   string
	CatalogSheet           string // empty means the first sheet
	CatalogColumn          int
	ReconciliationFolderID string
	CatalogTTL             time.Duration
}

type Client struct {
	svc     *gsheet.Service
	drive   *gdrive.Service
	opts    Options
	catalog *cache.LRUCache[[]string]
}

// Ensure interface conformance
var _ ports.Workspace = (*Client)(nil)

// New creates a client authenticated with service account credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	creds, err := credentialsJSON(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	drv, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gdrive.DriveReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets and Drive services created",
		"project_folder", opts.ProjectFolderID,
		"output_spreadsheet", opts.OutputSpreadsheetID)
	return NewWithServices(svc, drv, opts), nil
}

// NewWithServices wires already constructed services.
func NewWithServices(svc *gsheet.Service, drv *gdrive.Service, opts Options) *Client {
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = 10 * time.Minute
	}
	return &Client{
		svc:     svc,
		drive:   drv,
		opts:    opts,
		catalog: cache.NewLRUCache[[]string](4, opts.CatalogTTL),
	}
}

// credentialsJSON loads service account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func credentialsJSON(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ReadSheet returns the unformatted values of a sheet; dates come back as serial numbers.
func (c *Client) ReadSheet(ctx context.Context, ref ports.SourceRef, sheet string) ([][]any, error) {
	if _, ok, err := c.sheetProps(ctx, ref.ID, sheet); err != nil {
		return nil, err
	} else if !ok {
		return nil, ports.MissingSheet(ref, sheet)
	}
	resp, err := c.svc.Spreadsheets.Values.Get(ref.ID, quoteSheet(sheet)).
		ValueRenderOption(valueRenderUnformatted).
		DateTimeRenderOption(dateRenderSerial).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", ref.Name, sheet, err)
	}
	return toGrid(resp.Values), nil
}

// ReadAccounts reads the account column of the chart of accounts, cached for CatalogTTL.
func (c *Client) ReadAccounts(ctx context.Context) ([]string, error) {
	id := c.opts.CatalogSpreadsheetID
	if id == "" {
		return nil, errors.New("catalog spreadsheet not configured")
	}
	if cached, ok := c.catalog.Get(id); ok {
		return append([]string(nil), cached...), nil
	}
	sheet := c.opts.CatalogSheet
	if sheet == "" {
		first, err := c.firstSheet(ctx, id)
		if err != nil {
			return nil, err
		}
		sheet = first
	}
	resp, err := c.svc.Spreadsheets.Values.Get(id, quoteSheet(sheet)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	accounts := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if c.opts.CatalogColumn < len(row) {
			accounts = append(accounts, table.CellString(row[c.opts.CatalogColumn]))
		}
	}
	c.catalog.Set(id, accounts)
	return append([]string(nil), accounts...), nil
}

// InvalidateCatalog drops the cached chart of accounts.
func (c *Client) InvalidateCatalog() {
	c.catalog.Delete(c.opts.CatalogSpreadsheetID)
}

// ReplaceSheets keeps the first sheet of the output workbook, deletes the
// others and writes each table to a sheet of its own name.
func (c *Client) ReplaceSheets(ctx context.Context, tables []table.Table) error {
	id := c.opts.OutputSpreadsheetID
	if id == "" {
		return errors.New("output spreadsheet not configured")
	}
	props, err := c.listSheets(ctx, id)
	if err != nil {
		return err
	}
	if len(props) == 0 {
		return fmt.Errorf("output spreadsheet %s has no sheets", id)
	}
	first := props[0]

	var reqs []*gsheet.Request
	for _, p := range props[1:] {
		reqs = append(reqs, &gsheet.Request{DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: p.SheetId}})
	}
	for _, t := range tables {
		if t.Name == first.Title {
			continue
		}
		reqs = append(reqs, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: t.Name}}})
	}
	if len(reqs) > 0 {
		if _, err := c.svc.Spreadsheets.BatchUpdate(id, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("reshape output spreadsheet: %w", err)
		}
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(id, quoteSheet(first.Title), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", first.Title, err)
	}

	data := make([]*gsheet.ValueRange, 0, len(tables))
	for _, t := range tables {
		data = append(data, &gsheet.ValueRange{Range: quoteSheet(t.Name) + "!A1", Values: t.Values()})
	}
	if len(data) == 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.BatchUpdate(id, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: inputUserEntered,
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteSheet replaces a single sheet of the output workbook.
func (c *Client) WriteSheet(ctx context.Context, t table.Table) error {
	id := c.opts.OutputSpreadsheetID
	if id == "" {
		return errors.New("output spreadsheet not configured")
	}
	_, ok, err := c.sheetProps(ctx, id, t.Name)
	if err != nil {
		return err
	}
	if !ok {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{
			{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: t.Name}}},
		}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %s: %w", t.Name, err)
		}
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(id, quoteSheet(t.Name), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", t.Name, err)
	}
	_, err = c.svc.Spreadsheets.Values.Update(id, quoteSheet(t.Name)+"!A1", &gsheet.ValueRange{Values: t.Values()}).
		ValueInputOption(inputUserEntered).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", t.Name, err)
	}
	return nil
}

// WriteColumn clears the column below startRow and writes values with user-entered semantics.
func (c *Client) WriteColumn(ctx context.Context, ref ports.SourceRef, sheet string, column, startRow int, values []any) error {
	if _, ok, err := c.sheetProps(ctx, ref.ID, sheet); err != nil {
		return err
	} else if !ok {
		return ports.MissingSheet(ref, sheet)
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(ref.ID, columnRange(sheet, column, startRow), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s/%s: %w", ref.Name, sheet, err)
	}
	if len(values) == 0 {
		return nil
	}
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	_, err := c.svc.Spreadsheets.Values.Update(ref.ID, cellRef(sheet, column, startRow), &gsheet.ValueRange{Values: rows}).
		ValueInputOption(inputUserEntered).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", ref.Name, sheet, err)
	}
	return nil
}

// SetAccountValidation removes existing validation from the column and applies
// a strict one-of-list rule to every row below the header.
func (c *Client) SetAccountValidation(ctx context.Context, ref ports.SourceRef, sheet string, column int, accounts []string) error {
	props, ok, err := c.sheetProps(ctx, ref.ID, sheet)
	if err != nil {
		return err
	}
	if !ok {
		return ports.MissingSheet(ref, sheet)
	}
	rowCount := int64(1000)
	if props.GridProperties != nil && props.GridProperties.RowCount > 0 {
		rowCount = props.GridProperties.RowCount
	}
	col := int64(column)
	values := make([]*gsheet.ConditionValue, 0, len(accounts))
	for _, a := range accounts {
		values = append(values, &gsheet.ConditionValue{UserEnteredValue: a})
	}
	reqs := []*gsheet.Request{
		{SetDataValidation: &gsheet.SetDataValidationRequest{
			Range: &gsheet.GridRange{SheetId: props.SheetId, StartRowIndex: 0, EndRowIndex: rowCount, StartColumnIndex: col, EndColumnIndex: col + 1},
		}},
	}
	if rowCount > 1 {
		reqs = append(reqs, &gsheet.Request{SetDataValidation: &gsheet.SetDataValidationRequest{
			Range: &gsheet.GridRange{SheetId: props.SheetId, StartRowIndex: 1, EndRowIndex: rowCount, StartColumnIndex: col, EndColumnIndex: col + 1},
			Rule: &gsheet.DataValidationRule{
				Condition:    &gsheet.BooleanCondition{Type: "ONE_OF_LIST", Values: values},
				Strict:       true,
				ShowCustomUi: true,
			},
		}})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(ref.ID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("set validation on %s/%s: %w", ref.Name, sheet, err)
	}
	return nil
}

func (c *Client) listSheets(ctx context.Context, spreadsheetID string) ([]*gsheet.SheetProperties, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}
	out := make([]*gsheet.SheetProperties, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			out = append(out, s.Properties)
		}
	}
	return out, nil
}

func (c *Client) sheetProps(ctx context.Context, spreadsheetID, title string) (*gsheet.SheetProperties, bool, error) {
	props, err := c.listSheets(ctx, spreadsheetID)
	if err != nil {
		return nil, false, err
	}
	for _, p := range props {
		if p.Title == title {
			return p, true, nil
		}
	}
	return nil, false, nil
}

func (c *Client) firstSheet(ctx context.Context, spreadsheetID string) (string, error) {
	props, err := c.listSheets(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}
	if len(props) == 0 {
		return "", fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	return props[0].Title, nil
}

// quoteSheet quotes a sheet title for use in an A1 range.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellRef(sheet string, column, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), table.ColumnLetter(column), row)
}

func columnRange(sheet string, column, fromRow int) string {
	letter := table.ColumnLetter(column)
	return fmt.Sprintf("%s!%s%d:%s", quoteSheet(sheet), letter, fromRow, letter)
}

func toGrid(in [][]interface{}) [][]any {
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = append([]any(nil), r...)
	}
	return out
}
