package services

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/mozilla/tsci/internal/repo"
    "github.com/rs/zerolog"
)

func testConfig() config.Config {
    return config.Config{
        MinDate:               "2021-01-01",
        IgnoredQADomain:       "softvision",
        IgnoredGitHubAccounts: []string{"qa-reporter"},
        ExclusionWhiteboard:   "sci-exclude",
        ExclusionLabel:        "sci-exclude",
        ExcludedMilestones:    []string{"duplicate", "invalid", "incomplete"},
        MaxQueryLength:        256,
        TelegramChatIDs:       []int64{42},
    }
}

type fakeBugzilla struct {
    open     []domain.BugzillaBug
    resolved []domain.BugzillaBug
    seeAlso  []domain.BugzillaBug
}

func (f *fakeBugzilla) Open(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error) {
    return f.open, "https://bugzilla.example/buglist.cgi?open", nil
}

func (f *fakeBugzilla) Resolved(ctx context.Context, website string, w domain.DateWindow) ([]domain.BugzillaBug, string, error) {
    return f.resolved, "https://bugzilla.example/buglist.cgi?resolved", nil
}

func (f *fakeBugzilla) SeeAlsoCandidates(ctx context.Context, website string) ([]domain.BugzillaBug, error) {
    return f.seeAlso, nil
}

type fakeGitHub struct {
    all        []domain.WebCompatIssue
    criticals  []domain.WebCompatIssue
    duplicates []domain.WebCompatIssue
    queries    []string
    err        error
}

func (f *fakeGitHub) SearchAll(ctx context.Context, query string) ([]domain.WebCompatIssue, error) {
    f.queries = append(f.queries, query)
    if f.err != nil { return nil, f.err }
    switch {
    case strings.Contains(query, "severity-critical"):
        return f.criticals, nil
    case strings.Contains(query, "milestone%3Aduplicate"):
        return f.duplicates, nil
    default:
        return f.all, nil
    }
}

type fakeList struct {
    path  string
    sites []domain.Website
}

func (f *fakeList) Fetch(ctx context.Context, date time.Time) (string, error) { return f.path, nil }
func (f *fakeList) Read(path string) ([]domain.Website, error)                { return f.sites, nil }

type fakeSheets struct {
    weekEnd time.Time
    results []domain.DomainQueryResult
}

func (f *fakeSheets) Publish(ctx context.Context, listFile string, weekEnd time.Time, results []domain.DomainQueryResult) (string, string, error) {
    f.weekEnd = weekEnd
    f.results = results
    return "sheet-id", "https://docs.google.com/spreadsheets/d/sheet-id", nil
}

type fakeStore struct {
    started  []time.Time
    finished bool
    sheetID  string
    sites    int
    ok       bool
    errMsg   string
}

func (f *fakeStore) StartRun(ctx context.Context, weekEnd time.Time) (int64, error) {
    f.started = append(f.started, weekEnd)
    return 7, nil
}

func (f *fakeStore) FinishRun(ctx context.Context, id int64, sheetID string, sites int, ok bool, errMsg string) error {
    f.finished = true
    f.sheetID = sheetID
    f.sites = sites
    f.ok = ok
    f.errMsg = errMsg
    return nil
}

func (f *fakeStore) GetLastRun(ctx context.Context) (*repo.Run, error) { return nil, nil }

type fakeNotifier struct {
    messages []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
    f.messages = append(f.messages, text)
    return nil
}

func testWindow() domain.DateWindow {
    return domain.DateWindow{Min: date(2021, 1, 1), Max: WeekEnd(date(2021, 6, 9))}
}

func TestFetchBugsCountsAndFilters(t *testing.T) {
    bz := &fakeBugzilla{
        open: []domain.BugzillaBug{
            {ID: 1, Product: "Fenix", Creator: "user@example.com"},
            {ID: 2, Product: "Firefox", Creator: "user@example.com"},
            {ID: 3, Product: "Firefox", Creator: "jane@softvision.com"},
        },
        resolved: []domain.BugzillaBug{
            {ID: 2, Product: "Firefox", Creator: "user@example.com"}, // also open
            {ID: 4, Product: "Web Compatibility", Component: "Desktop", Creator: "user@example.com"},
        },
        seeAlso: []domain.BugzillaBug{
            {
                ID:           700,
                CreationTime: date(2021, 3, 1),
                SeeAlso:      []string{"https://webcompat.com/issues/300"},
            },
        },
    }
    gh := &fakeGitHub{
        all: []domain.WebCompatIssue{
            {Number: 10, Labels: []string{"browser-fenix"}, Reporter: "someone"},
            {Number: 11, Labels: []string{"browser-firefox"}, Reporter: "someone"},
            {Number: 12, Milestone: "invalid", Reporter: "someone"},
            {Number: 13, Reporter: "qa-reporter"},
        },
        criticals: []domain.WebCompatIssue{
            {Number: 10, Labels: []string{"severity-critical", "browser-fenix"}, Reporter: "someone"},
        },
        duplicates: []domain.WebCompatIssue{
            {Number: 300, Milestone: "duplicate", Labels: []string{"browser-fenix"}, Reporter: "someone"},
        },
    }
    svc := New(testConfig(), zerolog.Nop(), nil, bz, gh, nil, nil, nil)

    results, err := svc.FetchBugs(context.Background(), []domain.Website{{Rank: 1, Domain: "example.com"}}, testWindow())
    if err != nil { t.Fatal(err) }
    if len(results) != 1 { t.Fatalf("got %d results, want 1", len(results)) }
    r := results[0]

    if r.Bugzilla.Total != 3 {
        t.Errorf("bugzilla total = %d, want 3 (open+resolved deduplicated, QA dropped)", r.Bugzilla.Total)
    }
    if r.Bugzilla.Mobile != 1 || r.Bugzilla.Desktop != 2 {
        t.Errorf("bugzilla split = %d/%d, want 1/2", r.Bugzilla.Mobile, r.Bugzilla.Desktop)
    }
    if r.WebCompat.Total != 2 {
        t.Errorf("webcompat total = %d, want 2 (excluded milestone and QA reporter dropped)", r.WebCompat.Total)
    }
    if r.Criticals.Total != 1 {
        t.Errorf("criticals total = %d, want 1", r.Criticals.Total)
    }
    if r.Duplicates.Total != 1 || r.Duplicates.Mobile != 1 {
        t.Errorf("duplicates = %+v, want total 1, mobile 1", r.Duplicates)
    }
    if !strings.Contains(r.Duplicates.URL, "buglist.cgi") || !strings.Contains(r.Duplicates.URL, "700") {
        t.Errorf("duplicates URL = %q, want buglist link for bug 700", r.Duplicates.URL)
    }
    if !strings.HasPrefix(r.Bugzilla.Hyperlink(), "=HYPERLINK(") {
        t.Errorf("bugzilla cell = %q, want a hyperlink formula", r.Bugzilla.Hyperlink())
    }
}

func TestFetchBugsEndToEndScenario(t *testing.T) {
    bz := &fakeBugzilla{
        open: []domain.BugzillaBug{
            {ID: 1, Product: "Fenix", Creator: "a@example.com"},
            {ID: 2, Product: "Firefox", Creator: "b@example.com"},
        },
        resolved: []domain.BugzillaBug{
            {ID: 3, Product: "Core", Creator: "c@example.com"},
        },
    }
    gh := &fakeGitHub{
        all: []domain.WebCompatIssue{
            {Number: 10, Labels: []string{"engine-gecko"}, Reporter: "x"},
            {Number: 11, Labels: []string{"engine-gecko"}, Reporter: "y"},
            {Number: 12, Labels: []string{"engine-gecko", "severity-critical"}, Reporter: "z"},
        },
        criticals: []domain.WebCompatIssue{
            {Number: 12, Labels: []string{"engine-gecko", "severity-critical"}, Reporter: "z"},
        },
    }
    svc := New(testConfig(), zerolog.Nop(), nil, bz, gh, nil, nil, nil)

    run := func() domain.DomainQueryResult {
        results, err := svc.FetchBugs(context.Background(), []domain.Website{{Rank: 1, Domain: "example.com"}}, testWindow())
        if err != nil { t.Fatal(err) }
        return results[0]
    }

    r := run()
    if r.Bugzilla.Total != 3 || r.WebCompat.Total != 3 || r.Criticals.Total != 1 || r.Duplicates.Total != 0 {
        t.Errorf("counts = %d/%d/%d/%d, want 3/3/1/0",
            r.Bugzilla.Total, r.WebCompat.Total, r.Criticals.Total, r.Duplicates.Total)
    }

    // Identical inputs produce byte-identical output cells.
    again := run()
    for _, pair := range [][2]string{
        {r.Bugzilla.Hyperlink(), again.Bugzilla.Hyperlink()},
        {r.WebCompat.Hyperlink(), again.WebCompat.Hyperlink()},
        {r.Criticals.Hyperlink(), again.Criticals.Hyperlink()},
        {r.Duplicates.Hyperlink(), again.Duplicates.Hyperlink()},
    } {
        if pair[0] != pair[1] {
            t.Errorf("re-run produced %q, first run %q", pair[1], pair[0])
        }
    }
}

func TestFetchBugsDuplicateLinkOutsideWindow(t *testing.T) {
    bz := &fakeBugzilla{
        seeAlso: []domain.BugzillaBug{
            {
                ID:           700,
                CreationTime: date(2020, 3, 1), // before the window
                SeeAlso:      []string{"https://webcompat.com/issues/300"},
            },
        },
    }
    gh := &fakeGitHub{
        duplicates: []domain.WebCompatIssue{{Number: 300, Milestone: "duplicate"}},
    }
    svc := New(testConfig(), zerolog.Nop(), nil, bz, gh, nil, nil, nil)

    results, err := svc.FetchBugs(context.Background(), []domain.Website{{Rank: 1, Domain: "example.com"}}, testWindow())
    if err != nil { t.Fatal(err) }
    if got := results[0].Duplicates.Total; got != 0 {
        t.Errorf("duplicates total = %d, want 0 for a link added before the window", got)
    }
    // No candidates means no search at all: only the two issue queries ran.
    for _, q := range gh.queries {
        if strings.Contains(q, "milestone%3Aduplicate") {
            t.Errorf("unexpected duplicate confirmation query %q", q)
        }
    }
}

func TestWebcompatQueryShape(t *testing.T) {
    svc := New(testConfig(), zerolog.Nop(), nil, nil, nil, nil, nil, nil)
    api, human := svc.webcompatQuery("store.example.com", testWindow(), false)

    for _, want := range []string{
        "store+example+com",
        "created%3A2021-01-01..2021-06-12",
        "-closed%3A%3C%3D2021-06-12",
        "in%3Atitle",
        "label%3Aengine-gecko",
        "repo%3Awebcompat%2Fweb-bugs",
    } {
        if !strings.Contains(api, want) {
            t.Errorf("api query %q missing %q", api, want)
        }
    }
    if !strings.HasPrefix(human, "https://github.com/webcompat/web-bugs/issues?q=") {
        t.Errorf("human URL = %q", human)
    }
    if strings.Contains(human, "repo%3A") {
        t.Errorf("human URL %q should not carry the repo term", human)
    }

    crit, _ := svc.webcompatQuery("store.example.com", testWindow(), true)
    if !strings.Contains(crit, "label%3Aseverity-critical") {
        t.Errorf("critical query %q missing severity label", crit)
    }
}

func TestRunWindowPublishesAndNotifies(t *testing.T) {
    bz := &fakeBugzilla{}
    gh := &fakeGitHub{}
    store := &fakeStore{}
    sheets := &fakeSheets{}
    notifier := &fakeNotifier{}
    list := &fakeList{path: "list.csv", sites: []domain.Website{{Rank: 1, Domain: "example.com"}}}
    svc := New(testConfig(), zerolog.Nop(), store, bz, gh, list, sheets, notifier)

    maxDate := WeekEnd(date(2021, 6, 9))
    if err := svc.RunWindow(context.Background(), maxDate); err != nil {
        t.Fatal(err)
    }
    if !store.finished || !store.ok || store.sheetID != "sheet-id" || store.sites != 1 {
        t.Errorf("run bookkeeping = %+v, want finished ok with sheet id and one site", store)
    }
    if !sheets.weekEnd.Equal(maxDate) {
        t.Errorf("published week-end = %v, want %v", sheets.weekEnd, maxDate)
    }
    if len(sheets.results) != 1 {
        t.Errorf("published %d rows, want 1", len(sheets.results))
    }
    if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "sheet-id") {
        t.Errorf("notifications = %v, want one with the sheet URL", notifier.messages)
    }
}

func TestRunWindowFailureIsRecorded(t *testing.T) {
    bz := &fakeBugzilla{}
    gh := &fakeGitHub{err: errors.New("boom")}
    store := &fakeStore{}
    list := &fakeList{path: "list.csv", sites: []domain.Website{{Rank: 1, Domain: "example.com"}}}
    svc := New(testConfig(), zerolog.Nop(), store, bz, gh, list, &fakeSheets{}, nil)

    err := svc.RunWindow(context.Background(), WeekEnd(date(2021, 6, 9)))
    if err == nil { t.Fatal("want error") }
    if !strings.Contains(err.Error(), "example.com") {
        t.Errorf("error %q should name the failing domain", err)
    }
    if !store.finished || store.ok || store.errMsg == "" {
        t.Errorf("run bookkeeping = %+v, want finished not-ok with message", store)
    }
}
