package course

import (
	"strings"
	"unicode/utf16"

	"studycal/internal/model"
)

// Palette is the fallback color set for codes with no override and no
// subject entry. Its order is part of the hash contract: reordering it moves
// every fallback color.
var Palette = []string{
	"#3B82F6", // blue
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#14B8A6", // teal
	"#F97316", // orange
	"#6366F1", // indigo
	"#84CC16", // lime
	"#06B6D4", // cyan
	"#A855F7", // purple
}

type subjectStyle struct {
	color string
	icon  model.IconID
}

var subjects = map[string]subjectStyle{
	"PSY":  {"#8B5CF6", model.IconBrain},
	"MAC":  {"#3B82F6", model.IconGraduationCap},
	"MAT":  {"#3B82F6", model.IconGraduationCap},
	"MATH": {"#3B82F6", model.IconGraduationCap},
	"STA":  {"#0EA5E9", model.IconCalculator},
	"CHM":  {"#10B981", model.IconFlask},
	"BSC":  {"#22C55E", model.IconFlask},
	"BIO":  {"#22C55E", model.IconFlask},
	"PHY":  {"#F97316", model.IconFlask},
	"PHYS": {"#F97316", model.IconFlask},
	"ENC":  {"#EF4444", model.IconPen},
	"ENG":  {"#EF4444", model.IconPen},
	"LIT":  {"#F43F5E", model.IconBookOpen},
	"COP":  {"#6366F1", model.IconCode},
	"CS":   {"#6366F1", model.IconCode},
	"CIS":  {"#6366F1", model.IconCode},
	"AMH":  {"#B45309", model.IconLandmark},
	"HIS":  {"#B45309", model.IconLandmark},
	"POS":  {"#78716C", model.IconLandmark},
	"ECO":  {"#EAB308", model.IconBriefcase},
	"ACG":  {"#EAB308", model.IconBriefcase},
	"MAN":  {"#CA8A04", model.IconBriefcase},
	"SPN":  {"#14B8A6", model.IconGlobe},
	"FRE":  {"#14B8A6", model.IconGlobe},
	"ART":  {"#EC4899", model.IconPalette},
	"MUS":  {"#A855F7", model.IconMusic},
	"HSC":  {"#F43F5E", model.IconHeartPulse},
	"NUR":  {"#F43F5E", model.IconHeartPulse},
	"PET":  {"#84CC16", model.IconDumbbell},
}

// iconKeywords is matched in order against the lowercased code.
var iconKeywords = []struct {
	keyword string
	icon    model.IconID
}{
	{"math", model.IconGraduationCap},
	{"calc", model.IconCalculator},
	{"stat", model.IconCalculator},
	{"chem", model.IconFlask},
	{"bio", model.IconFlask},
	{"phys", model.IconFlask},
	{"sci", model.IconFlask},
	{"comp", model.IconCode},
	{"prog", model.IconCode},
	{"psych", model.IconBrain},
	{"hist", model.IconLandmark},
	{"gov", model.IconLandmark},
	{"econ", model.IconBriefcase},
	{"bus", model.IconBriefcase},
	{"eng", model.IconPen},
	{"writ", model.IconPen},
	{"lang", model.IconGlobe},
	{"art", model.IconPalette},
	{"mus", model.IconMusic},
	{"health", model.IconHeartPulse},
	{"nurs", model.IconHeartPulse},
	{"fit", model.IconDumbbell},
}

// Resolver picks display color and icon for a course code. The maps hold the
// user's saved overrides keyed by exact code.
type Resolver struct {
	Colors map[string]string
	Icons  map[string]string
}

// Color resolves override, then subject table, then hashed palette entry.
func (r *Resolver) Color(code string) string {
	if c, ok := r.Colors[code]; ok && c != "" {
		return c
	}
	if s, ok := subjects[subjectOf(code)]; ok {
		return s.color
	}
	return Palette[paletteIndex(code, len(Palette))]
}

// Icon resolves override, then subject table, then keyword match, then
// book-open. Overrides naming an unknown icon are ignored.
func (r *Resolver) Icon(code string) model.IconID {
	if id, ok := r.Icons[code]; ok && model.IconID(id).Valid() {
		return model.IconID(id)
	}
	if s, ok := subjects[subjectOf(code)]; ok {
		return s.icon
	}
	lower := strings.ToLower(code)
	for _, kw := range iconKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.icon
		}
	}
	return model.IconBookOpen
}

// subjectOf returns the leading letters of a code ("PSY" for "PSY-100").
func subjectOf(code string) string {
	end := 0
	for end < len(code) && code[end] >= 'A' && code[end] <= 'Z' {
		end++
	}
	return code[:end]
}

// paletteIndex is the 31-multiplier string hash over UTF-16 code units with
// int32 wrap-around, then |h| mod n. Same result in any runtime that does
// 32-bit integer arithmetic on code units.
func paletteIndex(code string, n int) int {
	var h int32
	for _, u := range utf16.Encode([]rune(code)) {
		h = (h << 5) - h + int32(u)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % int64(n))
}
