/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package tranco

import (
    "bufio"
    "bytes"
    "context"
    "encoding/csv"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strconv"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
)

const apiBase = "https://tranco-list.eu"

// maxLookback bounds the walk to earlier dates when no list was generated
// for the requested day (weekends, outages).
const maxLookback = 30

type fetcher interface {
    Get(ctx context.Context, url string) ([]byte, error)
}

// Client downloads and caches the ranked domain list. Lists are cached per
// requested date under the data directory, so historical runs are
// reproducible once fetched.
type Client struct {
    cfg   config.Config
    fetch fetcher
    log   zerolog.Logger
}

func NewClient(cfg config.Config, f fetcher, log zerolog.Logger) *Client {
    return &Client{cfg: cfg, fetch: f, log: log}
}

// Fetch returns the path of the cached "rank,domain" CSV for the given date,
// downloading it first if needed. Ignored domains are dropped at download
// time and the list is clamped to the configured size.
func (c *Client) Fetch(ctx context.Context, date time.Time) (string, error) {
    day := date.UTC().Format("2006-01-02")
    path := filepath.Join(c.cfg.DataDir, "list-"+day+".csv")
    if _, err := os.Stat(path); err == nil {
        c.log.Debug().Str("path", path).Msg("tranco: using cached list")
        return path, nil
    }

    id, err := c.listID(ctx, date)
    if err != nil { return "", err }

    // Over-fetch so dropping ignored domains still leaves a full list.
    count := c.cfg.ListSize + len(c.cfg.IgnoredDomainPatterns)
    body, err := c.fetch.Get(ctx, fmt.Sprintf("%s/download/%s/%d", apiBase, id, count))
    if err != nil { return "", err }

    filtered := c.filter(body)
    if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil { return "", err }
    if err := os.WriteFile(path, filtered, 0o644); err != nil { return "", err }
    c.log.Info().Str("path", path).Str("list", id).Msg("tranco: list downloaded")
    return path, nil
}

// listID resolves the list generated for the date, walking back one day at a
// time while the API reports no list available.
func (c *Client) listID(ctx context.Context, date time.Time) (string, error) {
    day := date.UTC()
    for i := 0; i < maxLookback; i++ {
        body, err := c.fetch.Get(ctx, apiBase+"/api/lists/date/"+day.Format("2006-01-02"))
        if err != nil { return "", err }
        var resp struct {
            Available bool   `json:"available"`
            ListID    string `json:"list_id"`
        }
        if err := json.Unmarshal(body, &resp); err != nil {
            return "", fmt.Errorf("tranco: decode list response: %w", err)
        }
        if resp.Available && resp.ListID != "" { return resp.ListID, nil }
        day = day.AddDate(0, 0, -1)
    }
    return "", &domain.FetchError{URL: apiBase, Err: fmt.Errorf("no list available within %d days", maxLookback)}
}

func (c *Client) filter(body []byte) []byte {
    var out bytes.Buffer
    kept := 0
    sc := bufio.NewScanner(bytes.NewReader(body))
    for sc.Scan() && kept < c.cfg.ListSize {
        line := sc.Text()
        if line == "" { continue }
        ignored := false
        for _, re := range c.cfg.IgnoredDomainPatterns {
            if re.MatchString(line) { ignored = true; break }
        }
        if ignored { continue }
        out.WriteString(line)
        out.WriteByte('\n')
        kept++
    }
    return out.Bytes()
}

// Read parses a cached list file into ranked websites.
func (c *Client) Read(path string) ([]domain.Website, error) {
    f, err := os.Open(path)
    if err != nil { return nil, err }
    defer f.Close()

    r := csv.NewReader(f)
    r.FieldsPerRecord = 2
    var sites []domain.Website
    for {
        rec, err := r.Read()
        if errors.Is(err, io.EOF) { break }
        if err != nil { return nil, fmt.Errorf("tranco: parse %s: %w", path, err) }
        rank, err := strconv.Atoi(rec[0])
        if err != nil { return nil, fmt.Errorf("tranco: parse %s: bad rank %q", path, rec[0]) }
        sites = append(sites, domain.Website{Rank: rank, Domain: rec[1]})
    }
    return sites, nil
}
