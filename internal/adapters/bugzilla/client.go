/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package bugzilla

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "strings"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
)

const baseURL = "https://bugzilla.mozilla.org"

// Products tracked for compatibility counts.
var Products = []string{
    "Core",
    "Fenix",
    "Firefox",
    "Firefox for Android",
    "Firefox for Echo Show",
    "Firefox for FireTV",
    "Firefox for iOS",
    "GeckoView",
    "Web Compatibility",
}

var openStatuses = []string{"UNCONFIRMED", "NEW", "ASSIGNED", "REOPENED"}

var priorities = []string{"P1", "P2", "P3"}

type fetcher interface {
    Get(ctx context.Context, url string) ([]byte, error)
}

type Client struct {
    key        string
    whiteboard string
    fetch      fetcher
    log        zerolog.Logger
}

func NewClient(cfg config.Config, f fetcher, log zerolog.Logger) *Client {
    return &Client{key: cfg.BugzillaKey, whiteboard: cfg.ExclusionWhiteboard, fetch: f, log: log}
}

// FormatDate renders a date the way the Bugzilla and GitHub query languages
// expect it.
func FormatDate(t time.Time) string { return t.Format("2006-01-02") }

// SiteRegexp returns the URL-field regexp matching a domain and all its
// subdomains: https?://(.+\.)*example\.com(/.*)*$
func SiteRegexp(website string) string {
    return `https?://(.+\.)*` + strings.ReplaceAll(website, ".", `\.`) + `(/.*)*$`
}

func multi(v url.Values, key string, vals []string) {
    for _, s := range vals { v.Add(key, s) }
}

func (c *Client) common(website string) url.Values {
    v := url.Values{}
    multi(v, "priority", priorities)
    multi(v, "product", Products)
    v.Set("bug_file_loc_type", "regexp")
    v.Set("bug_file_loc", SiteRegexp(website))
    v.Set("keywords", "meta, ")
    v.Set("keywords_type", "nowords")
    v.Set("status_whiteboard_type", "notregexp")
    v.Set("status_whiteboard", c.whiteboard)
    return v
}

// Open returns open bugs for the website created inside the window, plus the
// human-browsable buglist URL for the same search.
func (c *Client) Open(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error) {
    v := c.common(website)
    v.Set("include_fields", "id,summary,status,priority,product,component,op_sys,creator,whiteboard,keywords")
    multi(v, "bug_status", openStatuses)
    v.Set("resolution", "---")
    v.Set("f1", "OP")
    v.Set("f3", "creation_ts")
    v.Set("o3", "greaterthaneq")
    v.Set("v3", FormatDate(w.Min))
    v.Set("f4", "creation_ts")
    v.Set("o4", "lessthaneq")
    v.Set("v4", FormatDate(w.Max))
    bugs, err := c.query(ctx, v)
    return bugs, c.browseURL(v), err
}

// Resolved returns bugs whose status changed to RESOLVED inside the window.
func (c *Client) Resolved(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error) {
    v := c.common(website)
    v.Set("include_fields", "id,summary,status,priority,product,component,op_sys,creator,whiteboard,keywords")
    v.Set("chfield", "bug_status")
    v.Set("chfieldvalue", "RESOLVED")
    v.Set("chfieldfrom", FormatDate(w.Min))
    v.Set("chfieldto", FormatDate(w.Max))
    v.Set("f1", "OP")
    v.Set("f4", "creation_ts")
    v.Set("o4", "lessthaneq")
    v.Set("v4", FormatDate(w.Max))
    bugs, err := c.query(ctx, v)
    return bugs, c.browseURL(v), err
}

// SeeAlsoCandidates returns open bugs for the website whose see-also field
// references webcompat.com, with full history for link reconstruction.
func (c *Client) SeeAlsoCandidates(ctx context.Context, website string) ([]domain.BugzillaBug, error) {
    v := url.Values{}
    v.Set("include_fields", "id,creation_time,see_also,history,priority,product,component")
    multi(v, "priority", priorities)
    v.Set("f1", "see_also")
    v.Set("o1", "anywordssubstr")
    v.Set("v1", "webcompat.com,github.com/webcompat")
    v.Set("f2", "bug_status")
    v.Set("o2", "anywordssubstr")
    v.Set("v2", strings.Join(openStatuses, ","))
    v.Set("f3", "bug_file_loc")
    v.Set("o3", "regexp")
    v.Set("v3", SiteRegexp(website))
    v.Set("limit", "0")
    return c.query(ctx, v)
}

// BugListURL links a buglist.cgi page showing the given bug ids.
func BugListURL(ids []int64) string {
    parts := make([]string, 0, len(ids))
    for _, id := range ids { parts = append(parts, fmt.Sprint(id)) }
    v := url.Values{}
    v.Set("f1", "bug_id")
    v.Set("o1", "anyexact")
    v.Set("v1", strings.Join(parts, ","))
    return baseURL + "/buglist.cgi?" + v.Encode()
}

func (c *Client) browseURL(v url.Values) string {
    b := url.Values{}
    for k, vals := range v {
        if k == "include_fields" || k == "api_key" { continue }
        b[k] = vals
    }
    b.Set("query_format", "advanced")
    return baseURL + "/buglist.cgi?" + b.Encode()
}

func (c *Client) query(ctx context.Context, v url.Values) ([]domain.BugzillaBug, error) {
    if c.key != "" { v.Set("api_key", c.key) }
    u := baseURL + "/rest/bug?" + v.Encode()
    body, err := c.fetch.Get(ctx, u)
    if err != nil { return nil, err }
    var envelope struct {
        Bugs []bugJSON `json:"bugs"`
    }
    if err := json.Unmarshal(body, &envelope); err != nil {
        return nil, fmt.Errorf("bugzilla: decode response: %w", err)
    }
    out := make([]domain.BugzillaBug, 0, len(envelope.Bugs))
    for _, b := range envelope.Bugs { out = append(out, b.toDomain()) }
    return out, nil
}

type bugJSON struct {
    ID           int64     `json:"id"`
    Summary      string    `json:"summary"`
    Status       string    `json:"status"`
    Priority     string    `json:"priority"`
    Product      string    `json:"product"`
    Component    string    `json:"component"`
    OpSys        string    `json:"op_sys"`
    Creator      string    `json:"creator"`
    Whiteboard   string    `json:"whiteboard"`
    Keywords     []string  `json:"keywords"`
    CreationTime time.Time `json:"creation_time"`
    SeeAlso      []string  `json:"see_also"`
    History      []struct {
        When    time.Time `json:"when"`
        Changes []struct {
            FieldName string `json:"field_name"`
            Added     string `json:"added"`
            Removed   string `json:"removed"`
        } `json:"changes"`
    } `json:"history"`
}

func (b bugJSON) toDomain() domain.BugzillaBug {
    out := domain.BugzillaBug{
        ID:           b.ID,
        Summary:      b.Summary,
        Status:       b.Status,
        Priority:     b.Priority,
        Product:      b.Product,
        Component:    b.Component,
        OpSys:        b.OpSys,
        Creator:      b.Creator,
        Whiteboard:   b.Whiteboard,
        Keywords:     b.Keywords,
        CreationTime: b.CreationTime,
        SeeAlso:      b.SeeAlso,
    }
    for _, h := range b.History {
        for _, ch := range h.Changes {
            out.History = append(out.History, domain.ChangeEvent{
                When:    h.When,
                Field:   ch.FieldName,
                Added:   ch.Added,
                Removed: ch.Removed,
            })
        }
    }
    return out
}
