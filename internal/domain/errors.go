package domain

import "fmt"

// FetchError reports a remote query that kept failing after the retry budget
// was spent.
type FetchError struct {
    URL string
    Err error
}

func (e *FetchError) Error() string {
    return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PaginationError reports a paginated search response that lacked the
// expected result envelope. It is fatal for the query; the pagination layer
// never retries.
type PaginationError struct {
    Query  string
    Reason string
}

func (e *PaginationError) Error() string {
    return fmt.Sprintf("paginate %q: %s", e.Query, e.Reason)
}

// ConfigError reports an unparseable date selection input. It aborts the run
// before any fetch begins.
type ConfigError struct {
    Input  string
    Reason string
}

func (e *ConfigError) Error() string {
    return fmt.Sprintf("config: %q: %s", e.Input, e.Reason)
}
