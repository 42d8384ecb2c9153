package services

import (
    "time"

    "github.com/mozilla/tsci/internal/domain"
)

// WeekEnd returns the last instant of the calendar week containing t: the
// start of the next Sunday minus one millisecond, i.e. 23:59:59.999 on
// Saturday.
func WeekEnd(t time.Time) time.Time {
    t = t.UTC()
    day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
    return day.AddDate(0, 0, 7-int(day.Weekday())).Add(-time.Millisecond)
}

// PlanFromInputDate expands a date spec into the ordered week-ending dates to
// evaluate. Accepted forms: "" (a single "now" window), "2021" (up to 52
// week-ends starting with the year's first week, stopping before the future),
// "2021-06" (up to 5 week-ends falling inside that month), and "2021-06-15"
// (that date's single week-end). Anything else is a domain.ConfigError.
func PlanFromInputDate(spec string, now time.Time) ([]time.Time, error) {
    if spec == "" {
        return []time.Time{now}, nil
    }
    if d, err := time.Parse("2006-01-02", spec); err == nil {
        return []time.Time{WeekEnd(d)}, nil
    }
    if d, err := time.Parse("2006-01", spec); err == nil {
        var out []time.Time
        w := WeekEnd(d)
        for len(out) < 5 && w.Month() == d.Month() && w.Year() == d.Year() && !w.After(now) {
            out = append(out, w)
            w = WeekEnd(w.Add(time.Millisecond))
        }
        return out, nil
    }
    if d, err := time.Parse("2006", spec); err == nil {
        var out []time.Time
        w := WeekEnd(d)
        for len(out) < 52 && !w.After(now) {
            out = append(out, w)
            w = WeekEnd(w.Add(time.Millisecond))
        }
        return out, nil
    }
    return nil, &domain.ConfigError{Input: spec, Reason: "not a year, year-month or date"}
}

// PlanResumeFrom yields every week-ending date from the given date's week up
// to, and not including, the week containing now. Used for catch-up runs.
func PlanResumeFrom(date string, now time.Time) ([]time.Time, error) {
    d, err := time.Parse("2006-01-02", date)
    if err != nil {
        return nil, &domain.ConfigError{Input: date, Reason: "not a date"}
    }
    var out []time.Time
    for w := WeekEnd(d); w.Before(now); w = WeekEnd(w.Add(time.Millisecond)) {
        out = append(out, w)
    }
    return out, nil
}
