// Package course groups Canvas-sourced events and tasks into courses.
//
// The pipeline is Extract (title -> code/term), Aggregate (group, stats,
// ordering, semester filter) and Resolver (color/icon). Everything here is
// pure: no I/O, no clocks except the Now passed in by the caller.
package course

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Match is a successful extraction.
type Match struct {
	Code string `json:"code"`
	Term string `json:"term,omitempty"`
}

var (
	bracketRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

	// 2025FA-PSY-100-007, 2025FA-CHM-2045-L012
	termFirstRe = regexp.MustCompile(`(?i)^\s*(\d{4}(?:FA|SP|SU|WI))-([A-Z]{2,5})-(\d{3,4}[A-Z]?)(?:-(L\d*|\d+))?\b`)

	// MAC2311C_CMB-25Fall 00279. The code itself is uppercase only so bracketed
	// prose like "[Lab123 notes]" is not a course.
	packedRe = regexp.MustCompile(`^\s*([A-Z]{2,5}\d{3,4}[A-Z]{0,2})(?:_[A-Z0-9]+)*(?:-(\d{2}|\d{4})((?i:FALL|SPRING|SUMMER|WINTER)))?\b`)

	// PSY-100 anywhere. Uppercase only: lowercase "due-2025" is prose.
	bareRe = regexp.MustCompile(`\b([A-Z]{2,5})-(\d{3,4}[A-Z]?)(?:-(L\d*))?\b`)

	embeddedTermRe  = regexp.MustCompile(`(?:^|[-_])(?:\d{4}|\d{2})(?:FALL|SPRING|SUMMER|WINTER|FA|SP|SU|WI)(?:[-_]|$)`)
	labSuffixRe     = regexp.MustCompile(`^([A-Z]+-?\d+[A-Z]?)-L\d*$`)
	sectionSuffixRe = regexp.MustCompile(`^([A-Z]+-?\d+[A-Z]{0,2})-\d+$`)
	validCodeRe     = regexp.MustCompile(`^[A-Z]{2,5}-?\d{3,4}[A-Z]{0,2}(?:-L)?$`)

	termRe       = regexp.MustCompile(`(?i)^(\d{4}|\d{2})\s*(FALL|SPRING|SUMMER|WINTER|FA|SP|SU|WI)$`)
	termSuffixRe = regexp.MustCompile(`(?i)^(FALL|SPRING|SUMMER|WINTER|FA|SP|SU|WI)\s*(\d{4}|\d{2})$`)
)

var seasonCodes = map[string]string{
	"FALL": "FA", "FA": "FA",
	"SPRING": "SP", "SP": "SP",
	"SUMMER": "SU", "SU": "SU",
	"WINTER": "WI", "WI": "WI",
}

// Extract returns the course code (and term when the title carries one) for a
// title. Only Canvas items are classified; anything else, and any title no
// rule recognises, yields ok == false.
func Extract(title string, canvas bool) (Match, bool) {
	if !canvas {
		return Match{}, false
	}
	for _, m := range bracketRe.FindAllStringSubmatch(title, -1) {
		if match, ok := extractBracket(m[1]); ok {
			return match, true
		}
	}
	return extractBare(title)
}

func extractBracket(content string) (Match, bool) {
	if m := termFirstRe.FindStringSubmatch(content); m != nil {
		raw := m[2] + "-" + m[3]
		if section := strings.ToUpper(m[4]); strings.HasPrefix(section, "L") {
			raw += "-" + section
		}
		if code, ok := normalizeCode(raw); ok {
			term, _ := NormalizeTerm(m[1])
			return Match{Code: code, Term: term}, true
		}
	}
	if m := packedRe.FindStringSubmatch(content); m != nil {
		if code, ok := normalizeCode(m[1]); ok {
			var term string
			if m[2] != "" {
				term, _ = NormalizeTerm(m[2] + m[3])
			}
			return Match{Code: code, Term: term}, true
		}
	}
	return Match{}, false
}

func extractBare(title string) (Match, bool) {
	for _, m := range bareRe.FindAllStringSubmatch(title, -1) {
		if _, season := seasonCodes[m[1]]; season {
			continue
		}
		raw := m[1] + "-" + m[2]
		if m[3] != "" {
			raw += "-" + m[3]
		}
		if code, ok := normalizeCode(raw); ok {
			return Match{Code: code}, true
		}
	}
	return Match{}, false
}

// normalizeCode uppercases, removes stray term fragments and hyphens, and
// collapses section numbers. Lab sections keep a bare "-L".
func normalizeCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	code = embeddedTermRe.ReplaceAllString(code, "-")
	code = strings.Trim(code, "-_ ")

	if m := labSuffixRe.FindStringSubmatch(code); m != nil {
		code = m[1] + "-L"
	} else if m := sectionSuffixRe.FindStringSubmatch(code); m != nil {
		code = m[1]
	}
	code = strings.Trim(code, "-")

	if !validCodeRe.MatchString(code) {
		return "", false
	}
	return code, true
}

// NormalizeTerm canonicalises "25Fall", "2025fa", "Fall 2025" to "2025FA".
func NormalizeTerm(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	var year, season string
	if m := termRe.FindStringSubmatch(raw); m != nil {
		year, season = m[1], m[2]
	} else if m := termSuffixRe.FindStringSubmatch(raw); m != nil {
		season, year = m[1], m[2]
	} else {
		return "", false
	}
	if len(year) == 2 {
		yy, _ := strconv.Atoi(year)
		year = strconv.Itoa(2000 + yy)
	}
	return year + seasonCodes[strings.ToUpper(season)], true
}

// TermFor is the academic term a date falls in: Jan-May spring, Jun-Jul
// summer, Aug-Dec fall.
func TermFor(t time.Time) string {
	season := "FA"
	switch {
	case t.Month() <= time.May:
		season = "SP"
	case t.Month() <= time.July:
		season = "SU"
	}
	return strconv.Itoa(t.Year()) + season
}
