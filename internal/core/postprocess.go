package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const emphasisMark = "**"

// Phrases that talk the patient out of seeing a doctor.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ne consultez pas de médecin`),
	regexp.MustCompile(`(?i)évitez les médecins`),
	regexp.MustCompile(`(?i)les médecins sont inutiles`),
	regexp.MustCompile(`(?i)auto-médication recommandée`),
}

// PostProcessor makes sure every reply points to a specialist and carries a
// disclaimer, then emphasizes known medical terms.  Each step checks for its
// own output first, so processing a processed reply changes nothing.
type PostProcessor struct {
	Matcher *Matcher
}

// NewPostProcessor constructs a post-processor around m.
func NewPostProcessor(m *Matcher) *PostProcessor {
	return &PostProcessor{Matcher: m}
}

// Process returns the final reply for raw, the model output answering
// originalMessage in the given language.
func (p *PostProcessor) Process(raw, originalMessage, language string) (string, error) {
	lang, err := LookupLanguage(language)
	if err != nil {
		return "", err
	}
	out, _ := p.process(raw, originalMessage, lang)
	return out, nil
}

// process also returns the specialist it recommended, or "" when the reply
// already had a recommendation.
func (p *PostProcessor) process(raw, originalMessage string, lang *Language) (string, string) {
	reply := strings.TrimSpace(raw)
	// An unpaired marker from the model would flip which spans count as
	// emphasized once our own text is appended.
	if strings.Count(reply, emphasisMark)%2 == 1 {
		i := strings.LastIndex(reply, emphasisMark)
		reply = reply[:i] + reply[i+len(emphasisMark):]
	}
	specialist := ""

	if !strings.Contains(reply, specialistGlyph) {
		label, reason := p.Matcher.Match(originalMessage)
		reply += fmt.Sprintf(lang.RecommendationFormat, label, reason)
		specialist = label
	}

	if !strings.Contains(strings.ToLower(reply), lang.DisclaimerMarker) {
		reply += lang.Disclaimer
	}

	for _, re := range harmfulPatterns {
		reply = re.ReplaceAllLiteralString(reply, lang.SafetyReplacement)
	}

	for _, re := range lang.emphasis {
		reply = emphasize(reply, re)
	}
	return strings.TrimLeft(reply, "\n"), specialist
}

// emphasize wraps every match of re that starts a word and is not already
// inside a **…** span.
func emphasize(text string, re *regexp.Regexp) string {
	segments := strings.Split(text, emphasisMark)
	// Even segments are outside emphasis.  Text after an unpaired marker
	// counts as inside and is left alone.
	for i := 0; i < len(segments); i += 2 {
		segments[i] = wrapMatches(segments[i], re)
	}
	return strings.Join(segments, emphasisMark)
}

func wrapMatches(s string, re *regexp.Regexp) string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if !startsWord(s, start, end) {
			continue
		}
		b.WriteString(s[prev:start])
		b.WriteString(emphasisMark)
		b.WriteString(s[start:end])
		b.WriteString(emphasisMark)
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// startsWord accepts a match that begins a word, so inflected forms like
// "douleurs" still count while "jours" inside "toujours" does not.  Short
// terms such as "orl" must also end the word.
func startsWord(s string, start, end int) bool {
	if utf8.RuneCountInString(s[start:end]) <= shortKeywordRunes {
		return atWordBoundary(s, start, end)
	}
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:start])
	return !isWordRune(r)
}
