package config

import "testing"

func TestCompileIgnoredDomains(t *testing.T) {
    patterns := CompileIgnoredDomains([]string{"bad.com"})
    if len(patterns) != 1 { t.Fatalf("got %d patterns", len(patterns)) }
    re := patterns[0]

    for _, line := range []string{"2,bad.com", "17,bad.com\n", "999,bad.com\r\n"} {
        if !re.MatchString(line) {
            t.Errorf("pattern should match %q", line)
        }
    }
    for _, line := range []string{
        "2,notbad.com",
        "2,bad.com.evil.net",
        "1000,bad.com", // ignore list only covers the top 999
    } {
        if re.MatchString(line) {
            t.Errorf("pattern should not match %q", line)
        }
    }
}

func TestParseStrings(t *testing.T) {
    got := parseStrings(" a, b ,,c ")
    if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
        t.Errorf("parseStrings = %v", got)
    }
    if parseStrings("") != nil {
        t.Error("empty input should yield nil")
    }
}

func TestParseInt64s(t *testing.T) {
    got := parseInt64s("42, -7, junk, 9")
    if len(got) != 3 || got[0] != 42 || got[1] != -7 || got[2] != 9 {
        t.Errorf("parseInt64s = %v", got)
    }
}
