package domain

import (
    "fmt"
    "time"
)

// Bug is the normalized view over either tracker's native record. The two
// trackers have different shapes, so classification code type-switches on the
// concrete variant instead of sniffing for fields.
type Bug interface{ bug() }

// BugzillaBug is a bugzilla.mozilla.org record with the fields the pipeline
// consumes. SeeAlso and History are only populated by the duplicate-candidate
// query.
type BugzillaBug struct {
    ID           int64
    Summary      string
    Status       string
    Priority     string
    Product      string
    Component    string
    OpSys        string
    Creator      string
    Whiteboard   string
    Keywords     []string
    CreationTime time.Time
    SeeAlso      []string
    History      []ChangeEvent
}

func (BugzillaBug) bug() {}

// WebCompatIssue is a webcompat.com (GitHub) issue as returned by the search
// API.
type WebCompatIssue struct {
    Number    int
    Title     string
    State     string
    Labels    []string
    Milestone string
    Reporter  string
    CreatedAt time.Time
}

func (WebCompatIssue) bug() {}

// ChangeEvent is one field-level change from a bug's history, flattened from
// Bugzilla's {when, changes:[...]} nesting.
type ChangeEvent struct {
    When    time.Time
    Field   string
    Added   string
    Removed string
}

// DateWindow is the inclusive evaluation range for one pipeline run. Max is
// always a week-ending date (last instant of the week, i.e. start of the next
// Sunday minus one millisecond) except for "now" runs.
type DateWindow struct {
    Min time.Time
    Max time.Time
}

// Website is one row of the top-site list.
type Website struct {
    Rank   int
    Domain string
}

// Count is a per-category count with its mobile/desktop split and the
// human-browsable query URL backing it.
type Count struct {
    Total   int
    Mobile  int
    Desktop int
    URL     string
}

// Hyperlink renders the count as the spreadsheet formula the output sink
// expects: =HYPERLINK("<url>"; <count>). The format is a hard output
// contract, not negotiable by the sink.
func (c Count) Hyperlink() string {
    if c.URL == "" { return fmt.Sprintf("%d", c.Total) }
    return fmt.Sprintf("=HYPERLINK(%q; %d)", c.URL, c.Total)
}

// DomainQueryResult is the per-domain, per-window unit handed to the
// spreadsheet writer.
type DomainQueryResult struct {
    Website    Website
    Window     DateWindow
    Bugzilla   Count
    WebCompat  Count
    Criticals  Count
    Duplicates Count
}

// QueryBatch is one bounded-length GitHub search query plus the mapping from
// matched issue numbers back to the Bugzilla bugs that referenced them.
type QueryBatch struct {
    Query      string
    IssueToBug map[int]int64
}
