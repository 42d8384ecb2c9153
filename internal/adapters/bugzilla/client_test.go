package bugzilla

import (
    "context"
    "net/url"
    "strings"
    "testing"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
)

type fakeFetcher struct {
    urls []string
    body []byte
}

func (f *fakeFetcher) Get(ctx context.Context, u string) ([]byte, error) {
    f.urls = append(f.urls, u)
    return f.body, nil
}

func testClient(f *fakeFetcher) *Client {
    cfg := config.Config{BugzillaKey: "secret", ExclusionWhiteboard: "sci-exclude"}
    return NewClient(cfg, f, zerolog.Nop())
}

func window() domain.DateWindow {
    return domain.DateWindow{
        Min: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
        Max: time.Date(2021, 6, 12, 23, 59, 59, 0, time.UTC),
    }
}

func queryOf(t *testing.T, raw string) url.Values {
    t.Helper()
    u, err := url.Parse(raw)
    if err != nil { t.Fatal(err) }
    return u.Query()
}

func TestSiteRegexp(t *testing.T) {
    got := SiteRegexp("store.example.com")
    want := `https?://(.+\.)*store\.example\.com(/.*)*$`
    if got != want {
        t.Errorf("SiteRegexp = %q, want %q", got, want)
    }
}

func TestOpenQueryParameters(t *testing.T) {
    f := &fakeFetcher{body: []byte(`{"bugs":[{"id":1,"product":"Fenix","status":"NEW"}]}`)}
    c := testClient(f)

    bugs, browse, err := c.Open(context.Background(), "example.com", window())
    if err != nil { t.Fatal(err) }
    if len(bugs) != 1 || bugs[0].ID != 1 || bugs[0].Product != "Fenix" {
        t.Fatalf("bugs = %+v", bugs)
    }

    q := queryOf(t, f.urls[0])
    if q.Get("resolution") != "---" {
        t.Errorf("resolution = %q, want ---", q.Get("resolution"))
    }
    if got := q["bug_status"]; len(got) != len(openStatuses) {
        t.Errorf("bug_status = %v, want %v", got, openStatuses)
    }
    if q.Get("v3") != "2021-01-01" || q.Get("v4") != "2021-06-12" {
        t.Errorf("creation window = %q..%q", q.Get("v3"), q.Get("v4"))
    }
    if q.Get("bug_file_loc_type") != "regexp" || !strings.Contains(q.Get("bug_file_loc"), `example\.com`) {
        t.Errorf("bug_file_loc = %q (%q)", q.Get("bug_file_loc"), q.Get("bug_file_loc_type"))
    }
    if q.Get("keywords_type") != "nowords" {
        t.Errorf("keywords_type = %q", q.Get("keywords_type"))
    }
    if q.Get("status_whiteboard_type") != "notregexp" || q.Get("status_whiteboard") != "sci-exclude" {
        t.Errorf("whiteboard exclusion = %q (%q)", q.Get("status_whiteboard"), q.Get("status_whiteboard_type"))
    }
    if q.Get("api_key") != "secret" {
        t.Error("API query should carry the key")
    }

    b := queryOf(t, browse)
    if b.Get("api_key") != "" || b.Get("include_fields") != "" {
        t.Errorf("browse URL %q leaks api_key or include_fields", browse)
    }
    if b.Get("query_format") != "advanced" {
        t.Errorf("browse URL %q missing query_format", browse)
    }
}

func TestResolvedQueryParameters(t *testing.T) {
    f := &fakeFetcher{body: []byte(`{"bugs":[]}`)}
    c := testClient(f)

    if _, _, err := c.Resolved(context.Background(), "example.com", window()); err != nil {
        t.Fatal(err)
    }
    q := queryOf(t, f.urls[0])
    if q.Get("chfield") != "bug_status" || q.Get("chfieldvalue") != "RESOLVED" {
        t.Errorf("chfield = %q/%q", q.Get("chfield"), q.Get("chfieldvalue"))
    }
    if q.Get("chfieldfrom") != "2021-01-01" || q.Get("chfieldto") != "2021-06-12" {
        t.Errorf("chfield window = %q..%q", q.Get("chfieldfrom"), q.Get("chfieldto"))
    }
}

func TestSeeAlsoCandidatesHistoryFlattening(t *testing.T) {
    body := `{"bugs":[{
        "id": 700,
        "creation_time": "2021-03-01T10:00:00Z",
        "see_also": ["https://webcompat.com/issues/300"],
        "history": [
            {"when": "2021-04-01T10:00:00Z", "changes": [
                {"field_name": "see_also", "added": "https://webcompat.com/issues/301", "removed": ""},
                {"field_name": "priority", "added": "P1", "removed": "P2"}
            ]}
        ]
    }]}`
    f := &fakeFetcher{body: []byte(body)}
    c := testClient(f)

    bugs, err := c.SeeAlsoCandidates(context.Background(), "example.com")
    if err != nil { t.Fatal(err) }
    if len(bugs) != 1 { t.Fatalf("bugs = %+v", bugs) }
    b := bugs[0]
    if len(b.History) != 2 {
        t.Fatalf("history = %+v, want 2 flattened events", b.History)
    }
    if b.History[0].Field != "see_also" || b.History[0].Added != "https://webcompat.com/issues/301" {
        t.Errorf("first event = %+v", b.History[0])
    }

    q := queryOf(t, f.urls[0])
    if q.Get("f1") != "see_also" || q.Get("o1") != "anywordssubstr" {
        t.Errorf("see_also clause = %q/%q", q.Get("f1"), q.Get("o1"))
    }
    if q.Get("limit") != "0" {
        t.Errorf("limit = %q, want 0 (no pagination)", q.Get("limit"))
    }
}

func TestBugListURL(t *testing.T) {
    got := BugListURL([]int64{700, 701})
    if !strings.Contains(got, "buglist.cgi") {
        t.Errorf("URL = %q", got)
    }
    q := queryOf(t, got)
    if q.Get("v1") != "700,701" || q.Get("o1") != "anyexact" {
        t.Errorf("bug id clause = %q/%q", q.Get("v1"), q.Get("o1"))
    }
}
