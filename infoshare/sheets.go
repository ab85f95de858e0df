package infoshare

import (
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"log/slog"
	"strings"
	"time"
)

const (
	sheetsTimestampLayout = "2006-01-02 15:04:05"

	sheetsValueInputUserEntered = "USER_ENTERED"
	sheetsValueInputRaw         = "RAW"
	sheetsInsertRows            = "INSERT_ROWS"
	sheetsDimensionRows         = "ROWS"
)

var (
	// SheetHeaders is the header row of the worksheet, one column per
	// field of an appended row.
	SheetHeaders = []string{
		"時間戳記",
		"分類",
		"主題",
		"一句話總結",
		"來源或連結",
		"Aiworks 點",
		"補充",
		"提交者",
		"提交者 ID",
	}

	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// SheetsAuthError indicates the spreadsheet couldn't be reached with the
// configured credentials, or the spreadsheet/worksheet doesn't exist.
type SheetsAuthError struct {
	Err error
}

func (e *SheetsAuthError) Error() string {
	return fmt.Sprintf("google sheets authentication failed: %s", e.Err.Error())
}

func (e *SheetsAuthError) Unwrap() error {
	return e.Err
}

// sheetsAPI is the subset of the Sheets API used by SheetsClient.
type sheetsAPI interface {
	// SheetID returns the numeric ID of the worksheet with the given title
	SheetID(ctx context.Context, title string) (int64, error)

	// FirstRow returns the values of row 1. Trailing empty cells are
	// not returned.
	FirstRow(ctx context.Context, title string) ([]any, error)

	// InsertRow inserts a new row 1, shifting existing rows down
	InsertRow(ctx context.Context, sheetID int64, title string, values []any) error

	// AppendRow appends a row after the last row with data
	AppendRow(ctx context.Context, title string, values []any) error
}

// googleSheetsAPI implements sheetsAPI with the Sheets v4 REST client
type googleSheetsAPI struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (g googleSheetsAPI) SheetID(ctx context.Context, title string) (int64, error) {
	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("error getting spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrWorksheetNotFound, title)
}

func (g googleSheetsAPI) FirstRow(ctx context.Context, title string) ([]any, error) {
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, a1Range(title, "1:1")).
		MajorDimension(sheetsDimensionRows).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("error reading first row: %w", err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	return vr.Values[0], nil
}

func (g googleSheetsAPI) InsertRow(
	ctx context.Context,
	sheetID int64,
	title string,
	values []any,
) error {
	_, err := g.svc.Spreadsheets.BatchUpdate(
		g.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{
					InsertDimension: &sheets.InsertDimensionRequest{
						Range: &sheets.DimensionRange{
							SheetId:         sheetID,
							Dimension:       sheetsDimensionRows,
							StartIndex:      0,
							EndIndex:        1,
							ForceSendFields: []string{"SheetId", "StartIndex"},
						},
					},
				},
			},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error inserting row: %w", err)
	}

	_, err = g.svc.Spreadsheets.Values.Update(
		g.spreadsheetID,
		a1Range(title, "A1"),
		&sheets.ValueRange{Values: [][]any{values}},
	).ValueInputOption(sheetsValueInputRaw).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error writing row: %w", err)
	}
	return nil
}

func (g googleSheetsAPI) AppendRow(ctx context.Context, title string, values []any) error {
	_, err := g.svc.Spreadsheets.Values.Append(
		g.spreadsheetID,
		a1Range(title, "A1"),
		&sheets.ValueRange{Values: [][]any{values}},
	).
		ValueInputOption(sheetsValueInputUserEntered).
		InsertDataOption(sheetsInsertRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("error appending row: %w", err)
	}
	return nil
}

// a1Range returns an A1 notation range on the given worksheet
func a1Range(title string, ref string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + ref
}

// SheetsClient appends submission records to one worksheet. It's safe
// for concurrent use.
type SheetsClient struct {
	api       sheetsAPI
	worksheet string
	sheetID   int64
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// sheetsClientOptions returns the client options used to authenticate
// with the configured service account credentials.
func sheetsClientOptions(cfg *SheetsConfig) []option.ClientOption {
	return []option.ClientOption{
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	}
}

// NewSheetsClient connects to the configured spreadsheet and verifies the
// worksheet exists. Any failure is returned as a *SheetsAuthError.
// Without opts, the service account in cfg.CredentialsFile is used.
func NewSheetsClient(
	ctx context.Context,
	cfg *SheetsConfig,
	logger *slog.Logger,
	opts ...option.ClientOption,
) (*SheetsClient, error) {
	if cfg == nil || !cfg.Enabled() {
		return nil, &SheetsAuthError{Err: errors.New("no spreadsheet ID configured")}
	}
	if len(opts) == 0 {
		opts = sheetsClientOptions(cfg)
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &SheetsAuthError{Err: err}
	}
	return newSheetsClient(
		ctx,
		googleSheetsAPI{svc: svc, spreadsheetID: cfg.SpreadsheetID},
		cfg,
		logger,
	)
}

func newSheetsClient(
	ctx context.Context,
	api sheetsAPI,
	cfg *SheetsConfig,
	logger *slog.Logger,
) (*SheetsClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MaxWritesPerSecond > 0 {
		limiter = rate.NewLimiter(
			rate.Limit(cfg.MaxWritesPerSecond),
			DefaultSheetsWriteBurst,
		)
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultSheetsWriteTimeout
	}

	c := &SheetsClient{
		api:       api,
		worksheet: cfg.WorksheetName,
		limiter:   limiter,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sheetID, err := api.SheetID(callCtx, cfg.WorksheetName)
	if err != nil {
		return nil, &SheetsAuthError{Err: err}
	}
	c.sheetID = sheetID
	logger.InfoContext(
		ctx,
		"connected to google sheets",
		"spreadsheet_id", cfg.SpreadsheetID,
		"worksheet", cfg.WorksheetName,
	)
	return c, nil
}

// write waits for the rate limiter, then calls f with a context bounded
// by the write timeout
func (c *SheetsClient) write(ctx context.Context, f func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return f(callCtx)
}

// EnsureHeaders writes the header row when the worksheet's first row,
// or its first cell, is empty. Existing headers are left alone.
func (c *SheetsClient) EnsureHeaders(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	row, err := c.api.FirstRow(readCtx, c.worksheet)
	if err != nil {
		c.logger.ErrorContext(ctx, "error reading worksheet headers", tint.Err(err))
		return err
	}
	if len(row) > 0 && fmt.Sprint(row[0]) != "" {
		c.logger.DebugContext(ctx, "worksheet headers already present")
		return nil
	}

	headers := make([]any, len(SheetHeaders))
	for i, h := range SheetHeaders {
		headers[i] = h
	}
	if err = c.write(
		ctx, func(wctx context.Context) error {
			return c.api.InsertRow(wctx, c.sheetID, c.worksheet, headers)
		},
	); err != nil {
		c.logger.ErrorContext(ctx, "error writing worksheet headers", tint.Err(err))
		return err
	}
	c.logger.InfoContext(ctx, "initialized worksheet headers")
	return nil
}

// AppendRecord appends one row for rec, stamped with the current
// local time.
func (c *SheetsClient) AppendRecord(ctx context.Context, rec SubmissionRecord) error {
	row := recordRow(rec, c.now())
	err := c.write(
		ctx, func(wctx context.Context) error {
			return c.api.AppendRow(wctx, c.worksheet, row)
		},
	)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "appended record to worksheet", "record", rec)
	return nil
}

// recordRow returns the worksheet row for rec, matching SheetHeaders
func recordRow(rec SubmissionRecord, ts time.Time) []any {
	return []any{
		ts.Format(sheetsTimestampLayout),
		rec.Category,
		rec.Topic,
		rec.Summary,
		rec.Source,
		rec.Points,
		rec.Note,
		rec.SubmitterName,
		rec.SubmitterID,
	}
}
