/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package services

import (
    "context"
    "fmt"
    "net/url"
    "regexp"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/mozilla/tsci/internal/adapters/bugzilla"
    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/mozilla/tsci/internal/repo"
    "github.com/rs/zerolog"
)

type BugzillaClient interface {
    Open(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error)
    Resolved(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error)
    SeeAlsoCandidates(ctx context.Context, website string) ([]domain.BugzillaBug, error)
}

type GitHubClient interface {
    SearchAll(ctx context.Context, query string) ([]domain.WebCompatIssue, error)
}

type ListFetcher interface {
    Fetch(ctx context.Context, date time.Time) (string, error)
    Read(path string) ([]domain.Website, error)
}

type SheetWriter interface {
    Publish(ctx context.Context, listFile string, weekEnd time.Time, results []domain.DomainQueryResult) (id, sheetURL string, err error)
}

type Notifier interface {
    SendMessage(ctx context.Context, chatID int64, text string) error
}

type RunStore interface {
    StartRun(ctx context.Context, weekEnd time.Time) (int64, error)
    FinishRun(ctx context.Context, id int64, sheetID string, sites int, ok bool, errMsg string) error
    GetLastRun(ctx context.Context) (*repo.Run, error)
}

type Service struct {
    cfg    config.Config
    log    zerolog.Logger
    repo   RunStore
    bz     BugzillaClient
    gh     GitHubClient
    list   ListFetcher
    sheets SheetWriter
    tg     Notifier
}

func New(cfg config.Config, log zerolog.Logger, r RunStore, bz BugzillaClient, gh GitHubClient, list ListFetcher, sheets SheetWriter, tg Notifier) *Service {
    return &Service{cfg: cfg, log: log, repo: r, bz: bz, gh: gh, list: list, sheets: sheets, tg: tg}
}

// PlanWindows resolves the configured date selection into the week-ending
// dates to evaluate, one pipeline run each.
func (s *Service) PlanWindows(now time.Time) ([]time.Time, error) {
    if s.cfg.ResumeFrom != "" {
        return PlanResumeFrom(s.cfg.ResumeFrom, now)
    }
    return PlanFromInputDate(s.cfg.InputDate, now)
}

// RunOnce evaluates every planned window sequentially and exits on the first
// failure. Re-running is safe: the trackers are queried by content, not by
// run id.
func (s *Service) RunOnce(ctx context.Context) error {
    windows, err := s.PlanWindows(time.Now())
    if err != nil { return err }
    s.log.Info().Int("windows", len(windows)).Msg("run: planned")
    for _, w := range windows {
        if err := s.RunWindow(ctx, w); err != nil { return err }
    }
    return nil
}

// RunWeekly is the cron entry point: a single window ending now.
func (s *Service) RunWeekly(ctx context.Context) error {
    return s.RunWindow(ctx, time.Now())
}

// RunWindow executes the full pipeline for one week-ending date: list fetch,
// per-domain reconciliation, spreadsheet publication, bookkeeping and
// notification.
func (s *Service) RunWindow(ctx context.Context, maxDate time.Time) error {
    minDate, err := time.Parse("2006-01-02", s.cfg.MinDate)
    if err != nil {
        return &domain.ConfigError{Input: s.cfg.MinDate, Reason: "not a date"}
    }
    w := domain.DateWindow{Min: minDate, Max: maxDate}
    s.log.Info().Time("min", w.Min).Time("max", w.Max).Msg("run: window start")

    listFile, err := s.list.Fetch(ctx, maxDate)
    if err != nil { return fmt.Errorf("fetch site list: %w", err) }
    sites, err := s.list.Read(listFile)
    if err != nil { return fmt.Errorf("read site list: %w", err) }

    runID, err := s.repo.StartRun(ctx, maxDate)
    if err != nil { s.log.Error().Err(err).Msg("start run failed") }
    var sheetID string
    var published int
    var runErr error
    defer func() {
        if runID != 0 {
            msg := ""
            if runErr != nil { msg = runErr.Error() }
            _ = s.repo.FinishRun(ctx, runID, sheetID, published, runErr == nil, msg)
        }
    }()

    results, err := s.FetchBugs(ctx, sites, w)
    if err != nil { runErr = err; return err }
    published = len(results)

    id, sheetURL, err := s.sheets.Publish(ctx, listFile, maxDate, results)
    if err != nil { runErr = fmt.Errorf("publish spreadsheet: %w", err); return runErr }
    sheetID = id
    s.log.Info().Str("spreadsheet", id).Msg("run: published")

    if s.tg != nil {
        text := fmt.Sprintf("Site Compatibility Index for the week ending %s: %s",
            bugzilla.FormatDate(maxDate), sheetURL)
        for _, chat := range s.cfg.TelegramChatIDs {
            if err := s.tg.SendMessage(ctx, chat, text); err != nil {
                s.log.Error().Err(err).Int64("chat", chat).Msg("notify failed")
            }
        }
    }
    return nil
}

// FetchBugs reconciles every domain against both trackers for the window.
// Domains are processed one at a time and each domain's queries run
// sequentially; both trackers throttle per credential, so serialization is
// the correct policy. A failed domain aborts the run rather than zero-fill
// its row.
func (s *Service) FetchBugs(ctx context.Context, sites []domain.Website, w domain.DateWindow) ([]domain.DomainQueryResult, error) {
    results := make([]domain.DomainQueryResult, 0, len(sites))
    for _, site := range sites {
        r, err := s.fetchDomain(ctx, site, w)
        if err != nil {
            return nil, fmt.Errorf("domain %s, window %s..%s: %w",
                site.Domain, bugzilla.FormatDate(w.Min), bugzilla.FormatDate(w.Max), err)
        }
        results = append(results, r)
        s.log.Info().Str("website", site.Domain).
            Int("bugzilla", r.Bugzilla.Total).
            Int("webcompat", r.WebCompat.Total).
            Int("criticals", r.Criticals.Total).
            Int("duplicates", r.Duplicates.Total).
            Msg("fetched bug data")
    }
    return results, nil
}

func (s *Service) fetchDomain(ctx context.Context, site domain.Website, w domain.DateWindow) (domain.DomainQueryResult, error) {
    out := domain.DomainQueryResult{Website: site, Window: w}

    open, openURL, err := s.bz.Open(ctx, site.Domain, w)
    if err != nil { return out, fmt.Errorf("bugzilla open query: %w", err) }
    resolved, _, err := s.bz.Resolved(ctx, site.Domain, w)
    if err != nil { return out, fmt.Errorf("bugzilla resolved query: %w", err) }
    out.Bugzilla = tally(s.keepBugzilla(open, resolved), openURL)

    all, allURL := s.webcompatQuery(site.Domain, w, false)
    issues, err := s.gh.SearchAll(ctx, all)
    if err != nil { return out, fmt.Errorf("webcompat query: %w", err) }
    out.WebCompat = tally(s.keepWebCompat(issues), allURL)

    crit, critURL := s.webcompatQuery(site.Domain, w, true)
    criticals, err := s.gh.SearchAll(ctx, crit)
    if err != nil { return out, fmt.Errorf("webcompat criticals query: %w", err) }
    out.Criticals = tally(s.keepWebCompat(criticals), critURL)

    dup, err := s.fetchDuplicates(ctx, site.Domain, w)
    if err != nil { return out, fmt.Errorf("duplicate discovery: %w", err) }
    out.Duplicates = dup

    return out, nil
}

// keepBugzilla unions the open and resolved result sets (deduplicated by
// id), dropping excluded and QA-filed bugs.
func (s *Service) keepBugzilla(sets ...[]domain.BugzillaBug) []domain.Bug {
    seen := map[int64]bool{}
    var kept []domain.Bug
    for _, set := range sets {
        for _, b := range set {
            if seen[b.ID] { continue }
            seen[b.ID] = true
            if isExcluded(b, s.cfg.ExclusionWhiteboard, s.cfg.ExclusionLabel) { continue }
            if isQAAuthored(b, s.cfg.IgnoredQADomain, s.cfg.IgnoredGitHubAccounts) { continue }
            kept = append(kept, b)
        }
    }
    return kept
}

func (s *Service) keepWebCompat(issues []domain.WebCompatIssue) []domain.Bug {
    var kept []domain.Bug
    for _, is := range issues {
        if s.excludedMilestone(is.Milestone) { continue }
        if isExcluded(is, s.cfg.ExclusionWhiteboard, s.cfg.ExclusionLabel) { continue }
        if isQAAuthored(is, s.cfg.IgnoredQADomain, s.cfg.IgnoredGitHubAccounts) { continue }
        kept = append(kept, is)
    }
    return kept
}

func (s *Service) excludedMilestone(m string) bool {
    for _, x := range s.cfg.ExcludedMilestones {
        if m == x { return true }
    }
    return false
}

func tally(bugs []domain.Bug, browseURL string) domain.Count {
    c := domain.Count{URL: browseURL}
    for _, b := range bugs {
        c.Total++
        if isMobile(b) { c.Mobile++ }
        if isDesktop(b) { c.Desktop++ }
    }
    return c
}

var issueIDRe = regexp.MustCompile(`/(\d+)$`)

// fetchDuplicates finds webcompat.com issues cross-referenced from Bugzilla
// see-also links added inside the window, then confirms via the milestone
// search which of those issues are marked duplicate. Counted by distinct
// Bugzilla id, so one bug linked from several issues counts once.
func (s *Service) fetchDuplicates(ctx context.Context, website string, w domain.DateWindow) (domain.Count, error) {
    bugs, err := s.bz.SeeAlsoCandidates(ctx, website)
    if err != nil { return domain.Count{}, err }

    var candidates []duplicateCandidate
    for _, bug := range bugs {
        for _, l := range sortedLinkList(SeeAlsoLinks(bug)) {
            if l.added.Before(w.Min) || l.added.After(w.Max) { continue }
            if !strings.Contains(l.url, "webcompat.com") && !strings.Contains(l.url, "github.com/webcompat") {
                continue
            }
            m := issueIDRe.FindStringSubmatch(l.url)
            if m == nil { continue }
            n, err := strconv.Atoi(m[1])
            if err != nil { continue }
            candidates = append(candidates, duplicateCandidate{Issue: n, Bug: bug.ID})
        }
    }

    dupBugs := map[int64]domain.WebCompatIssue{}
    for _, batch := range batchQueries(candidates, s.cfg.MaxQueryLength, duplicateBaseQuery()) {
        items, err := s.gh.SearchAll(ctx, batch.Query)
        if err != nil { return domain.Count{}, err }
        for _, it := range items {
            bzID, ok := batch.IssueToBug[it.Number]
            if !ok || it.Milestone != "duplicate" { continue }
            if _, dup := dupBugs[bzID]; dup { continue }
            dupBugs[bzID] = it
        }
    }
    if len(dupBugs) == 0 { return domain.Count{}, nil }

    c := domain.Count{}
    ids := make([]int64, 0, len(dupBugs))
    for id, it := range dupBugs {
        ids = append(ids, id)
        c.Total++
        if isMobile(it) { c.Mobile++ }
        if isDesktop(it) { c.Desktop++ }
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    c.URL = bugzilla.BugListURL(ids)
    return c, nil
}

func duplicateBaseQuery() string {
    return joinTerms("is:issue", "milestone:duplicate", "repo:webcompat/web-bugs")
}

// webcompatQuery builds the API search query and the matching human-browsable
// issues URL. Domain dots become separate title terms; the window maps to a
// created range plus an exclusion of issues closed at or before the window
// end (point-in-time open state).
func (s *Service) webcompatQuery(website string, w domain.DateWindow, critical bool) (api, human string) {
    terms := strings.Split(website, ".")
    terms = append(terms,
        fmt.Sprintf("created:%s..%s", bugzilla.FormatDate(w.Min), bugzilla.FormatDate(w.Max)),
        fmt.Sprintf("-closed:<=%s", bugzilla.FormatDate(w.Max)),
        "in:title",
        "label:engine-gecko",
    )
    if critical {
        terms = append(terms, "label:severity-critical")
    }
    human = "https://github.com/webcompat/web-bugs/issues?q=" + joinTerms(terms...)
    api = joinTerms(append(terms, "repo:webcompat/web-bugs")...)
    return api, human
}

// joinTerms escapes each search term and joins them with '+', the query
// separator both GitHub endpoints expect.
func joinTerms(terms ...string) string {
    esc := make([]string, 0, len(terms))
    for _, t := range terms { esc = append(esc, url.QueryEscape(t)) }
    return strings.Join(esc, "+")
}

func (s *Service) GetLastRun(ctx context.Context) (*repo.Run, error) {
    return s.repo.GetLastRun(ctx)
}

type linkEntry struct {
    url   string
    added time.Time
}

// sortedLinkList fixes the iteration order of a reconstructed link map so the
// resulting batches are deterministic run to run.
func sortedLinkList(links map[string]time.Time) []linkEntry {
    out := make([]linkEntry, 0, len(links))
    for u, t := range links { out = append(out, linkEntry{url: u, added: t}) }
    sort.Slice(out, func(i, j int) bool { return out[i].url < out[j].url })
    return out
}
