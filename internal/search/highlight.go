package search

import (
	"strings"
	"unicode/utf8"
)

// Segment is a run of text that either matches the term or not.
type Segment struct {
	Text  string
	Match bool
}

// Highlight splits text into alternating unmatched and matched segments,
// matching term case-insensitively. Concatenating the segments yields text.
func Highlight(text, term string) []Segment {
	if term == "" || text == "" {
		return []Segment{{Text: text}}
	}
	lowerText := Fold(text)
	lowerTerm := Fold(term)
	// Folding can change byte lengths for some runes; fall back to a
	// rune-aligned scan when it does.
	if len(lowerText) != len(text) {
		return highlightRunes(text, term)
	}
	var out []Segment
	pos := 0
	for {
		i := strings.Index(lowerText[pos:], lowerTerm)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(lowerTerm)
		if start > pos {
			out = append(out, Segment{Text: text[pos:start]})
		}
		out = append(out, Segment{Text: text[start:end], Match: true})
		pos = end
	}
	if pos < len(text) {
		out = append(out, Segment{Text: text[pos:]})
	}
	return out
}

func highlightRunes(text, term string) []Segment {
	n := utf8.RuneCountInString(term)
	var out []Segment
	var plain strings.Builder
	for i := 0; i < len(text); {
		j, count := i, 0
		for j < len(text) && count < n {
			_, size := utf8.DecodeRuneInString(text[j:])
			j += size
			count++
		}
		if count == n && strings.EqualFold(text[i:j], term) {
			if plain.Len() > 0 {
				out = append(out, Segment{Text: plain.String()})
				plain.Reset()
			}
			out = append(out, Segment{Text: text[i:j], Match: true})
			i = j
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		plain.WriteString(text[i : i+size])
		i += size
	}
	if plain.Len() > 0 {
		out = append(out, Segment{Text: plain.String()})
	}
	return out
}
