package knowledge

import (
	"regexp"
	"strings"
	"unicode"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Chunk is a slice of a source document together with the heading it
// falls under.
type Chunk struct {
	Heading string
	Text    string
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// Split cuts markdown or plain text into chunks of at most size runes,
// consecutive chunks of one section sharing about overlap runes. Chunks never
// span a heading. The first level-one heading is returned as the title.
func Split(text string, size, overlap int) (title string, chunks []Chunk) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var heading string
	var body []string
	flush := func() {
		for _, w := range windows(strings.Join(body, "\n"), size, overlap) {
			chunks = append(chunks, Chunk{Heading: heading, Text: w})
		}
		body = body[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			heading = m[2]
			if title == "" && len(m[1]) == 1 {
				title = heading
			}
			continue
		}
		body = append(body, line)
	}
	flush()
	return title, chunks
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// windows splits s into overlapping windows, breaking on whitespace where
// possible.
func windows(s string, size, overlap int) []string {
	s = strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
	if s == "" {
		return nil
	}
	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			// Back off to the last space in the second half of the window.
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}
		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			out = append(out, w)
		}
		if end == len(runes) {
			break
		}

		next := max(end-overlap, start+1)
		// Start the next window on a word boundary.
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return out
}
