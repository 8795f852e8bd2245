package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule maps a specialist label to the keywords that trigger it.
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules is the specialist table.  Order matters: the first rule with a
// matching keyword wins, so "douleur à la poitrine" goes to the cardiologist
// before the rheumatologist sees "douleur".
var DefaultRules = []Rule{
	{"neurologue", []string{"tête", "vertige", "migraine", "neurologique", "mal de tête"}},
	{"cardiologue", []string{"cœur", "poitrine", "palpitation", "cardiaque", "thorax"}},
	{"gastro-entérologue", []string{"ventre", "estomac", "digestif", "nausée", "abdomen"}},
	{"dermatologue", []string{"peau", "éruption", "dermatologique", "acné"}},
	{"gynécologue", []string{"menstruel", "gynécologique", "femme", "règles", "utérus"}},
	{"urologue", []string{"urinaire", "rein", "vessie", "prostate"}},
	{"pneumologue", []string{"respiration", "poumon", "toux", "asthme"}},
	{"rhumatologue", []string{"articulation", "douleur", "arthrite", "os"}},
	{"endocrinologue", []string{"diabète", "thyroïde", "hormonal", "sucre"}},
	{"psychiatre", []string{"anxiété", "dépression", "mental", "stress"}},
	{"orl", []string{"oreille", "nez", "gorge", "sinusite"}},
	{"ophtalmologue", []string{"yeux", "vision", "vue", "œil"}},
	{"médecin généraliste", []string{"général", "consultation", "fatigue"}},
}

const (
	DefaultSpecialist = "médecin généraliste"
	DefaultReason     = "pour une consultation générale"
)

// Keywords this short only match whole words; "os" would otherwise fire on
// "dos" or "repos".
const shortKeywordRunes = 3

// Matcher picks a specialist for a free-text message.  It is immutable and
// safe for concurrent use.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a matcher over a copy of rules.  Keywords are lowercased.
func NewMatcher(rules []Rule) *Matcher {
	cp := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		cp[i] = Rule{Label: r.Label, Keywords: kws}
	}
	return &Matcher{rules: cp}
}

// Match returns the first specialist whose keyword appears in text, with a
// reason naming that keyword.  Without a match it returns the general
// practitioner.
func (m *Matcher) Match(text string) (label, reason string) {
	lower := strings.ToLower(text)
	for _, r := range m.rules {
		for _, kw := range r.Keywords {
			if containsKeyword(lower, kw) {
				return r.Label, "pour les problèmes de " + kw
			}
		}
	}
	return DefaultSpecialist, DefaultReason
}

func containsKeyword(s, kw string) bool {
	if kw == "" {
		return false
	}
	if utf8.RuneCountInString(kw) > shortKeywordRunes {
		return strings.Contains(s, kw)
	}
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], kw)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(kw)
		if atWordBoundary(s, start, end) {
			return true
		}
		off = start + 1
	}
	return false
}

// atWordBoundary reports whether s[start:end] is not glued to a letter or
// digit on either side.
func atWordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
