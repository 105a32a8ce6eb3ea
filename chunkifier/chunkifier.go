package chunkifier

import (
	"strings"
)

const (
	sentenceSeparator       = ". "
	DefaultOverlapSentences = 3
)

// SentenceChunkifier packs whole sentences into chunks of at most chunkSize words.
// Text without sentence boundaries is cut into overlapping word windows instead.
type SentenceChunkifier struct {
	ChunkSize        int
	ChunkOverlap     int
	OverlapSentences int
}

func (c *SentenceChunkifier) Chunkify(text string) []string {
	overlapSentences := c.OverlapSentences
	if overlapSentences < 0 {
		overlapSentences = DefaultOverlapSentences
	}

	return chunkify(text, c.ChunkSize, c.ChunkOverlap, overlapSentences)
}

// Chunkify splits text using the default sentence overlap.
func Chunkify(text string, size int, overlap int) []string {
	return chunkify(text, size, overlap, DefaultOverlapSentences)
}

func chunkify(text string, size int, overlap int, overlapSentences int) []string {
	if size <= 0 {
		return nil
	}

	text = normalize(text)
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	var chunks []string
	if strings.Contains(text, sentenceSeparator) {
		chunks = packSentences(splitSentences(text), size, overlapSentences)
	} else {
		chunks = slideWindows(strings.Fields(text), size, overlap)
	}

	res := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		res = append(res, c)
	}

	return res
}

// normalize collapses every whitespace run, line breaks included, into one space.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func splitSentences(text string) []string {
	parts := strings.Split(text, sentenceSeparator)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") && !strings.HasSuffix(p, "!") && !strings.HasSuffix(p, "?") {
			p += "."
		}
		sentences = append(sentences, p)
	}

	return sentences
}

type sentence struct {
	text  string
	words int
}

func packSentences(texts []string, size int, overlapSentences int) []string {
	var (
		chunks  []string
		current []sentence
		length  int
	)

	flush := func() {
		parts := make([]string, len(current))
		for i, s := range current {
			parts[i] = s.text
		}
		chunks = append(chunks, strings.Join(parts, " "))
	}

	for _, t := range texts {
		s := sentence{text: t, words: len(strings.Fields(t))}

		if length+s.words > size && len(current) > 0 {
			flush()

			var seed []sentence
			if overlapSentences > 0 && len(current) > overlapSentences {
				seed = append(seed, current[len(current)-overlapSentences:]...)
			}

			length = 0
			for _, ss := range seed {
				length += ss.words
			}
			// the seed must leave room for the sentence that caused the overflow
			for len(seed) > 0 && length+s.words > size {
				length -= seed[0].words
				seed = seed[1:]
			}
			current = seed
		}

		current = append(current, s)
		length += s.words
	}

	if len(current) > 0 {
		flush()
	}

	return chunks
}

func slideWindows(words []string, size int, overlap int) []string {
	if len(words) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	res := make([]string, 0, len(words)/step+1)
	for pos := 0; pos < len(words); pos += step {
		end := min(pos+size, len(words))
		res = append(res, strings.Join(words[pos:end], " "))
		if end >= len(words) {
			break
		}
	}

	return res
}
