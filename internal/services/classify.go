package services

import (
    "strings"

    "github.com/mozilla/tsci/internal/domain"
)

// Product and label sets for the mobile/desktop split. A record can match
// neither (platform-independent bugs stay in the total only).
var mobileProducts = map[string]bool{
    "Core":                  true,
    "Fenix":                 true,
    "Firefox for Android":   true,
    "Firefox for Echo Show": true,
    "Firefox for FireTV":    true,
    "Firefox for iOS":       true,
    "GeckoView":             true,
}

var desktopProducts = map[string]bool{
    "Firefox": true,
}

var mobileLabels = map[string]bool{
    "browser-fenix":           true,
    "browser-firefox-mobile":  true,
    "browser-firefox-tablet":  true,
    "browser-focus-geckoview": true,
    "browser-geckoview":       true,
}

var desktopLabels = map[string]bool{
    "browser-firefox": true,
}

func isMobile(b domain.Bug) bool {
    switch bug := b.(type) {
    case domain.BugzillaBug:
        if mobileProducts[bug.Product] { return true }
        return bug.Product == "Web Compatibility" && bug.Component == "Mobile"
    case domain.WebCompatIssue:
        for _, l := range bug.Labels {
            if mobileLabels[l] { return true }
        }
    }
    return false
}

func isDesktop(b domain.Bug) bool {
    switch bug := b.(type) {
    case domain.BugzillaBug:
        if desktopProducts[bug.Product] { return true }
        return bug.Product == "Web Compatibility" && bug.Component == "Desktop"
    case domain.WebCompatIssue:
        if isMobile(bug) { return false }
        for _, l := range bug.Labels {
            if desktopLabels[l] { return true }
        }
    }
    return false
}

// isQAAuthored reports whether the record was filed by paid QA: Bugzilla
// matches on the creator's mail domain, webcompat.com on the reporting
// account.
func isQAAuthored(b domain.Bug, qaDomain string, ignoredAccounts []string) bool {
    switch bug := b.(type) {
    case domain.BugzillaBug:
        return qaDomain != "" && strings.Contains(bug.Creator, qaDomain)
    case domain.WebCompatIssue:
        for _, a := range ignoredAccounts {
            if bug.Reporter == a { return true }
        }
    }
    return false
}

// isExcluded reports whether the record opted out of the index via the
// exclusion whiteboard entry (Bugzilla), the meta keyword, or the exclusion
// label (webcompat.com).
func isExcluded(b domain.Bug, whiteboard, label string) bool {
    switch bug := b.(type) {
    case domain.BugzillaBug:
        if whiteboard != "" && strings.Contains(bug.Whiteboard, whiteboard) { return true }
        for _, k := range bug.Keywords {
            if k == "meta" { return true }
        }
    case domain.WebCompatIssue:
        for _, l := range bug.Labels {
            if label != "" && l == label { return true }
        }
    }
    return false
}
