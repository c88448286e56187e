package ingest

import "strings"

// defaultSeparators are tried in order; the splitter prefers paragraph
// breaks, then lines, then sentences, then words, before cutting at
// arbitrary characters.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter breaks text into overlapping chunks. Overlap keeps sentences
// that straddle a chunk boundary retrievable from both sides.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a Splitter producing chunks of at most chunkSize
// bytes with the given overlap between consecutive chunks.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split chunks the text. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	return s.split(text, defaultSeparators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	sep, rest := nextSeparator(text, seps)
	if sep == "" {
		return s.hardSplit(text)
	}

	parts := strings.SplitAfter(text, sep)

	var chunks []string
	var window []string
	winLen := 0

	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	// carryOverlap trims the window to its tail so the next chunk
	// starts with up to overlap bytes of the previous one.
	carryOverlap := func() {
		kept, cut := 0, len(window)
		for i := len(window) - 1; i >= 0; i-- {
			if kept+len(window[i]) > s.overlap {
				break
			}
			kept += len(window[i])
			cut = i
		}
		window = append([]string(nil), window[cut:]...)
		winLen = kept
	}

	for _, part := range parts {
		if len(part) > s.chunkSize {
			emit()
			window, winLen = nil, 0
			chunks = append(chunks, s.split(part, rest)...)
			continue
		}
		if winLen+len(part) > s.chunkSize {
			emit()
			carryOverlap()
			if winLen+len(part) > s.chunkSize {
				window, winLen = nil, 0
			}
		}
		window = append(window, part)
		winLen += len(part)
	}
	emit()
	return chunks
}

// hardSplit cuts text into fixed-size rune windows when no separator
// is left to split on.
func (s *Splitter) hardSplit(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap
	if step <= 0 {
		step = s.chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func nextSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}
