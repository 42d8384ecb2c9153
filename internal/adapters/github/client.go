/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package github

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
    "golang.org/x/time/rate"
)

const (
    searchURL = "https://api.github.com/search/issues"
    userAgent = "mozilla/tsci"

    // Authenticated search is capped at 30 requests/minute; the limiter keeps
    // every request under one credential behind the same budget.
    searchInterval = 2 * time.Second
)

// Registry hands out one client per credential so that all queries under the
// same API key share a single limiter and backoff timer. It replaces the
// process-wide singleton cache of earlier revisions.
type Registry struct {
    cfg     config.Config
    log     zerolog.Logger
    mu      sync.Mutex
    clients map[string]*Client
}

func NewRegistry(cfg config.Config, log zerolog.Logger) *Registry {
    return &Registry{cfg: cfg, log: log, clients: map[string]*Client{}}
}

func (r *Registry) Client(token string) *Client {
    r.mu.Lock()
    defer r.mu.Unlock()
    if c, ok := r.clients[token]; ok { return c }
    c := &Client{
        token:   token,
        http:    &http.Client{Timeout: r.cfg.HTTPTimeout},
        limiter: rate.NewLimiter(rate.Every(searchInterval), 1),
        perPage: r.cfg.SearchPerPage,
        retries: r.cfg.RetryAttempts,
        log:     r.log,
    }
    if c.perPage <= 0 { c.perPage = 100 }
    if c.retries <= 0 { c.retries = 3 }
    r.clients[token] = c
    return c
}

type Client struct {
    token   string
    http    *http.Client
    limiter *rate.Limiter
    perPage int
    retries int
    log     zerolog.Logger

    mu        sync.Mutex
    notBefore time.Time
}

// SearchAll runs the search query across every result page. The page
// parameter is 1-based; pages are fetched until the accumulated item count
// reaches the total reported by the first page (the first-seen total stays
// authoritative so the loop always terminates). A response without the
// expected envelope fails with a domain.PaginationError.
func (c *Client) SearchAll(ctx context.Context, query string) ([]domain.WebCompatIssue, error) {
    var results []domain.WebCompatIssue
    expected := -1
    for page := 1; expected < 0 || len(results) < expected; page++ {
        u := fmt.Sprintf("%s?q=%s&per_page=%d&page=%d", searchURL, query, c.perPage, page)
        body, err := c.get(ctx, u)
        if err != nil { return nil, err }
        var envelope struct {
            TotalCount *int         `json:"total_count"`
            Items      *[]issueJSON `json:"items"`
        }
        if err := json.Unmarshal(body, &envelope); err != nil {
            return nil, &domain.PaginationError{Query: query, Reason: "undecodable response: " + err.Error()}
        }
        if envelope.TotalCount == nil || envelope.Items == nil {
            return nil, &domain.PaginationError{Query: query, Reason: "response missing total_count or items"}
        }
        if expected < 0 { expected = *envelope.TotalCount }
        if expected > 0 && len(*envelope.Items) == 0 {
            return nil, &domain.PaginationError{Query: query, Reason: "empty page before reaching total_count"}
        }
        for _, it := range *envelope.Items { results = append(results, it.toDomain()) }
        if expected == 0 { break }
    }
    return results, nil
}

// get performs one API request, honoring the shared limiter and any backoff
// set by an earlier rate-limit response. Secondary-limit ("abuse") responses
// are logged and not retried, to avoid compounding the flag.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
    var lastErr error
    for attempt := 0; attempt < c.retries; attempt++ {
        if err := c.waitTurn(ctx); err != nil { return nil, err }
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
        if err != nil { return nil, err }
        req.Header.Set("Accept", "application/vnd.github+json")
        req.Header.Set("User-Agent", userAgent)
        if c.token != "" { req.Header.Set("Authorization", "token "+c.token) }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err; continue }
        body, err := io.ReadAll(resp.Body)
        resp.Body.Close()
        if err != nil { lastErr = err; continue }
        switch {
        case resp.StatusCode >= 200 && resp.StatusCode < 300:
            return body, nil
        case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
            if strings.Contains(strings.ToLower(string(body)), "abuse") ||
                strings.Contains(strings.ToLower(string(body)), "secondary rate limit") {
                c.log.Error().Str("url", u).Msg("github: abuse detection triggered, not retrying")
                return nil, &domain.FetchError{URL: u, Err: fmt.Errorf("abuse detected, status=%d", resp.StatusCode)}
            }
            wait := retryAfter(resp)
            c.backOff(wait)
            c.log.Warn().Dur("wait", wait).Str("url", u).Msg("github: rate limited, backing off")
            // Rate-limit waits do not consume a retry attempt.
            attempt--
            lastErr = fmt.Errorf("rate limited, status=%d", resp.StatusCode)
            continue
        default:
            lastErr = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
            continue
        }
    }
    return nil, &domain.FetchError{URL: u, Err: lastErr}
}

func (c *Client) waitTurn(ctx context.Context) error {
    c.mu.Lock()
    until := c.notBefore
    c.mu.Unlock()
    if d := time.Until(until); d > 0 {
        select {
        case <-time.After(d):
        case <-ctx.Done():
            return ctx.Err()
        }
    }
    return c.limiter.Wait(ctx)
}

func (c *Client) backOff(d time.Duration) {
    c.mu.Lock()
    if nb := time.Now().Add(d); nb.After(c.notBefore) { c.notBefore = nb }
    c.mu.Unlock()
}

func retryAfter(resp *http.Response) time.Duration {
    if s := resp.Header.Get("Retry-After"); s != "" {
        if secs, err := strconv.Atoi(s); err == nil && secs > 0 { return time.Duration(secs) * time.Second }
    }
    if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
        if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
            if d := time.Until(time.Unix(epoch, 0)); d > 0 { return d }
        }
    }
    return time.Minute
}

type issueJSON struct {
    Number int    `json:"number"`
    Title  string `json:"title"`
    State  string `json:"state"`
    Labels []struct {
        Name string `json:"name"`
    } `json:"labels"`
    Milestone *struct {
        Title string `json:"title"`
    } `json:"milestone"`
    User *struct {
        Login string `json:"login"`
    } `json:"user"`
    CreatedAt time.Time `json:"created_at"`
}

func (i issueJSON) toDomain() domain.WebCompatIssue {
    out := domain.WebCompatIssue{
        Number:    i.Number,
        Title:     i.Title,
        State:     i.State,
        CreatedAt: i.CreatedAt,
    }
    for _, l := range i.Labels { out.Labels = append(out.Labels, l.Name) }
    if i.Milestone != nil { out.Milestone = i.Milestone.Title }
    if i.User != nil { out.Reporter = i.User.Login }
    return out
}
