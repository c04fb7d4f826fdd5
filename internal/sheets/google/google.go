package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuentas/internal/core"
	ports "cuentas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Ensure interface conformance
var _ ports.LedgerMirror = (*Client)(nil)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	AccountsSheet     string
	CredentialsJSON   string
	CredentialsFile   string
}

// Client mirrors ledger rows into two tabs of one spreadsheet. Rows are located
// by the id in column A.
type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	accountsSheet     string
}

// New creates a client authenticated with service account credentials. Extra
// options are appended after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	credentialsJSON, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	all := append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully",
		"spreadsheet_id", cfg.SpreadsheetID)
	return newWithService(svc, cfg), nil
}

// NewWithOptions builds a client from explicit options only, e.g. a custom
// endpoint and HTTP client.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newWithService(svc, cfg), nil
}

func newWithService(svc *gsheet.Service, cfg Config) *Client {
	txSheet := strings.TrimSpace(cfg.TransactionsSheet)
	if txSheet == "" {
		txSheet = "Transactions"
	}
	accSheet := strings.TrimSpace(cfg.AccountsSheet)
	if accSheet == "" {
		accSheet = "Accounts"
	}
	return &Client{
		svc:               svc,
		spreadsheetID:     strings.TrimSpace(cfg.SpreadsheetID),
		transactionsSheet: txSheet,
		accountsSheet:     accSheet,
	}
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	return c.upsert(ctx, c.transactionsSheet, "H", t.ID, ports.TransactionHeader, ports.TransactionRow(t))
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.clear(ctx, c.transactionsSheet, "H", id)
}

func (c *Client) UpsertAccount(ctx context.Context, a core.Account) error {
	return c.upsert(ctx, c.accountsSheet, "F", a.ID, ports.AccountHeader, ports.AccountRow(a))
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.clear(ctx, c.accountsSheet, "F", id)
}

// upsert rewrites the row holding id, or writes the next free row. An empty
// sheet gets the header first.
func (c *Client) upsert(ctx context.Context, sheet, lastCol, id string, header, row []any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		if err := c.writeRow(ctx, sheet, lastCol, 1, header); err != nil {
			return err
		}
		ids = []string{fmt.Sprint(header[0])}
	}

	rowNum := indexOf(ids, id) + 1
	if rowNum == 0 {
		rowNum = len(ids) + 1
	}

	if err := c.writeRow(ctx, sheet, lastCol, rowNum, row); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Sheet row written",
		"sheet", sheet,
		"row", rowNum,
		"id", id)
	return nil
}

func (c *Client) clear(ctx context.Context, sheet, lastCol, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return err
	}
	idx := indexOf(ids, id)
	if idx < 1 {
		// Row 1 is the header; nothing to clear.
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, idx+1, lastCol, idx+1)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context, sheet string) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read ids from %s: %w", sheet, err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return ids, nil
}

func (c *Client) writeRow(ctx context.Context, sheet, lastCol string, rowNum int, row []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, rowNum, lastCol, rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func indexOf(arr []string, target string) int {
	target = strings.TrimSpace(target)
	if target == "" {
		return -1
	}
	for i, v := range arr {
		if v == target {
			return i
		}
	}
	return -1
}
