// Package chunk splits long text into snippets that fit a platform's
// per-message size limit.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const DefaultSeparator = "\n"

// Lines splits content on newlines into snippets of at most maxLength runes.
func Lines(content string, maxLength int) []string {
	return Content(content, maxLength, DefaultSeparator)
}

// Content splits content into trimmed, non-empty snippets of at most
// maxLength runes each. Lines are accumulated greedily; a line that cannot
// fit even on its own is cut into fixed-size pieces.
func Content(content string, maxLength int, separator string) []string {
	if maxLength <= 0 || content == "" {
		return nil
	}

	s := splitter{maxLength: maxLength}

	lines := strings.Split(content, separator)
	for i, line := range lines {
		if i < len(lines)-1 {
			line += separator
		}

		s.add(line)
	}

	s.flush()

	return s.snippets
}

type splitter struct {
	maxLength int
	snippets  []string

	current    strings.Builder
	currentLen int
}

func (s *splitter) add(line string) {
	lineLen := utf8.RuneCountInString(line)

	if s.currentLen == 0 || s.currentLen+lineLen <= s.maxLength {
		if s.currentLen == 0 && lineLen > s.maxLength {
			s.splitIntoPieces(line)
			return
		}

		s.current.WriteString(line)
		s.currentLen += lineLen
		return
	}

	s.flush()

	if lineLen <= s.maxLength {
		s.current.WriteString(line)
		s.currentLen = lineLen
		return
	}

	s.splitIntoPieces(line)
}

func (s *splitter) flush() {
	if s.currentLen == 0 {
		return
	}

	s.push(s.current.String())
	s.current.Reset()
	s.currentLen = 0
}

func (s *splitter) splitIntoPieces(line string) {
	runes := []rune(line)

	for start := 0; start < len(runes); start += s.maxLength {
		end := min(start+s.maxLength, len(runes))
		s.push(string(runes[start:end]))
	}
}

func (s *splitter) push(snippet string) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return
	}

	s.snippets = append(s.snippets, snippet)
}
