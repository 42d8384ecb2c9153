/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package sheets

import (
    "context"
    "fmt"
    "os"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
    "google.golang.org/api/drive/v3"
    "google.golang.org/api/googleapi"
    "google.golang.org/api/option"
    sheetsapi "google.golang.org/api/sheets/v4"
)

// header row of the published index. Columns C..F receive hyperlinked bug
// counts, G holds the critical weight, H..J the computed index columns.
var header = []interface{}{
    "Rank",
    "Website",
    "bugzilla 🐞s",
    "webcompat.com 🐞s",
    "severity-critical 🐞s",
    "duplicate 🐞s",
    "critical weight",
    "SCI",
    "Site weight",
    "weighted SCI",
}

const criticalWeight = "25%"

// Client publishes weekly results as a Google spreadsheet. Authentication
// uses application default credentials.
type Client struct {
    cfg    config.Config
    sheets *sheetsapi.Service
    drive  *drive.Service
    log    zerolog.Logger
}

func NewClient(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Client, error) {
    ss, err := sheetsapi.NewService(ctx, option.WithScopes(sheetsapi.SpreadsheetsScope, drive.DriveScope))
    if err != nil { return nil, fmt.Errorf("sheets service: %w", err) }
    ds, err := drive.NewService(ctx, option.WithScopes(drive.DriveScope))
    if err != nil { return nil, fmt.Errorf("drive service: %w", err) }
    return &Client{cfg: cfg, sheets: ss, drive: ds, log: log}, nil
}

// Publish imports the ranked list CSV as a new spreadsheet, layers the index
// columns and bug counts on top and shares the result. Returns the document
// id and its browsable URL.
func (c *Client) Publish(ctx context.Context, listFile string, weekEnd time.Time, results []domain.DomainQueryResult) (string, string, error) {
    id, err := c.create(ctx, listFile)
    if err != nil { return "", "", err }

    sheetID, err := c.firstSheetID(ctx, id)
    if err != nil { return "", "", err }
    if err := c.layout(ctx, id, sheetID, weekEnd); err != nil { return "", "", err }
    if err := c.writeData(ctx, id, results); err != nil { return "", "", err }

    for _, email := range c.cfg.ShareWith {
        if err := c.share(ctx, id, email); err != nil {
            c.log.Error().Err(err).Str("email", email).Msg("sheets: share failed")
        }
    }
    sheetURL := "https://docs.google.com/spreadsheets/d/" + id
    c.log.Info().Str("url", sheetURL).Msg("sheets: spreadsheet published")
    return id, sheetURL, nil
}

// create uploads the CSV with conversion, yielding a spreadsheet whose first
// sheet holds rank and website columns.
func (c *Client) create(ctx context.Context, listFile string) (string, error) {
    f, err := os.Open(listFile)
    if err != nil { return "", err }
    defer f.Close()

    file, err := c.drive.Files.Create(&drive.File{
        Name:     c.cfg.SheetTitle,
        MimeType: "application/vnd.google-apps.spreadsheet",
    }).Media(f, googleapi.ContentType("text/csv")).Context(ctx).Do()
    if err != nil { return "", fmt.Errorf("create spreadsheet: %w", err) }
    return file.Id, nil
}

func (c *Client) firstSheetID(ctx context.Context, id string) (int64, error) {
    doc, err := c.sheets.Spreadsheets.Get(id).Context(ctx).Do()
    if err != nil { return 0, fmt.Errorf("get spreadsheet: %w", err) }
    if len(doc.Sheets) == 0 { return 0, fmt.Errorf("spreadsheet %s has no sheets", id) }
    return doc.Sheets[0].Properties.SheetId, nil
}

// layout names the sheet tab after the week-ending date and opens a row for
// the header above the imported list.
func (c *Client) layout(ctx context.Context, id string, sheetID int64, weekEnd time.Time) error {
    _, err := c.sheets.Spreadsheets.BatchUpdate(id, &sheetsapi.BatchUpdateSpreadsheetRequest{
        Requests: []*sheetsapi.Request{
            {
                UpdateSheetProperties: &sheetsapi.UpdateSheetPropertiesRequest{
                    Properties: &sheetsapi.SheetProperties{
                        SheetId: sheetID,
                        Title:   weekEnd.UTC().Format("1/2"),
                    },
                    Fields: "title",
                },
            },
            {
                InsertDimension: &sheetsapi.InsertDimensionRequest{
                    Range: &sheetsapi.DimensionRange{
                        SheetId:    sheetID,
                        Dimension:  "ROWS",
                        StartIndex: 0,
                        EndIndex:   1,
                    },
                },
            },
        },
    }).Context(ctx).Do()
    if err != nil { return fmt.Errorf("layout spreadsheet: %w", err) }
    return nil
}

func (c *Client) writeData(ctx context.Context, id string, results []domain.DomainQueryResult) error {
    n := len(results)
    last := n + 1 // last data row, header is row 1
    counts := make([][]interface{}, 0, n)
    computed := make([][]interface{}, 0, n)
    for i, r := range results {
        row := i + 2
        counts = append(counts, []interface{}{
            r.Bugzilla.Hyperlink(),
            r.WebCompat.Hyperlink(),
            r.Criticals.Hyperlink(),
            r.Duplicates.Hyperlink(),
        })
        computed = append(computed, []interface{}{
            fmt.Sprintf("=(C%d+D%d+F%d)+(E%d*$G$2)", row, row, row, row),
            fmt.Sprintf("=1/A%d", row),
            fmt.Sprintf("=H%d*I%d", row, row),
        })
    }
    totals := []interface{}{
        "Total",
        fmt.Sprintf("=SUM(C2:C%d)", last),
        fmt.Sprintf("=SUM(D2:D%d)", last),
        fmt.Sprintf("=SUM(E2:E%d)", last),
        fmt.Sprintf("=SUM(F2:F%d)", last),
        "",
        fmt.Sprintf("=SUM(H2:H%d)", last),
        "",
        fmt.Sprintf("=SUM(J2:J%d)", last),
    }

    _, err := c.sheets.Spreadsheets.Values.BatchUpdate(id, &sheetsapi.BatchUpdateValuesRequest{
        ValueInputOption: "USER_ENTERED",
        Data: []*sheetsapi.ValueRange{
            {Range: "A1:J1", Values: [][]interface{}{header}},
            {Range: "G2", Values: [][]interface{}{{criticalWeight}}},
            {Range: fmt.Sprintf("C2:F%d", last), Values: counts},
            {Range: fmt.Sprintf("H2:J%d", last), Values: computed},
            {Range: fmt.Sprintf("B%d:J%d", last+1, last+1), Values: [][]interface{}{totals}},
        },
    }).Context(ctx).Do()
    if err != nil { return fmt.Errorf("write spreadsheet values: %w", err) }
    return nil
}

func (c *Client) share(ctx context.Context, id, email string) error {
    _, err := c.drive.Permissions.Create(id, &drive.Permission{
        Type:         "user",
        Role:         "writer",
        EmailAddress: email,
    }).Context(ctx).Do()
    return err
}
