package chunkifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Chunkify(t *testing.T) {
	var cases = []struct {
		input   string
		size    int
		overlap int
		output  []string
	}{
		{input: "The cat sat. The dog ran. The bird flew.", size: 800, overlap: 150, output: []string{"The cat sat. The dog ran. The bird flew."}},
		{input: "The cat\nsat. The dog\r\nran.", size: 800, overlap: 150, output: []string{"The cat sat. The dog ran."}},
		{input: "w1 x. w2 x. w3 x. w4 x. w5 x. w6 x.", size: 8, overlap: 0, output: []string{
			"w1 x. w2 x. w3 x. w4 x.",
			"w2 x. w3 x. w4 x. w5 x.",
			"w3 x. w4 x. w5 x. w6 x.",
		}},
		{input: "a. b. c. d. one two three four five six seven eight.", size: 10, overlap: 0, output: []string{
			"a. b. c. d.",
			"c. d. one two three four five six seven eight.",
		}},
		{input: "a b c d e. f g.", size: 3, overlap: 0, output: []string{"a b c d e.", "f g."}},
		{input: "Page one.\r\n\r\nPage  two\tends.\n\n", size: 800, overlap: 0, output: []string{"Page one. Page two ends."}},
		{input: "Is it? Yes. It is!", size: 800, overlap: 0, output: []string{"Is it? Yes. It is!"}},
		{input: "a b c d e f g", size: 3, overlap: 0, output: []string{"a b c", "d e f", "g"}},
		{input: "a b c d e f g", size: 3, overlap: 1, output: []string{"a b c", "c d e", "e f g"}},
		{input: "a b c d e f g", size: 9, overlap: 5, output: []string{"a b c d e f g"}},
		{input: "a b c d e", size: 2, overlap: 5, output: []string{"a b", "c d", "e"}},
		{input: "", size: 9, overlap: 5, output: []string{}},
		{input: " \n\r\n  ", size: 9, overlap: 5, output: []string{}},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			out := Chunkify(c.input, c.size, c.overlap)
			assert.Equal(t, c.output, out)
		})
	}
}

func Test_Chunkify_NonPositiveSize(t *testing.T) {
	assert.Nil(t, Chunkify("The cat sat. The dog ran.", 0, 0))
	assert.Nil(t, Chunkify("The cat sat. The dog ran.", -1, 0))
}

func Test_Chunkify_WordWindows(t *testing.T) {
	words := make([]string, 2000)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}

	chunks := Chunkify(strings.Join(words, " "), 800, 150)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c)), 800)
		if i == 0 {
			continue
		}

		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(c)
		assert.Equal(t, prev[len(prev)-150:], cur[:150], "chunk %d must overlap the previous one by 150 words", i)
	}

	assert.True(t, strings.HasSuffix(chunks[2], "w1999"))
}

func Test_Chunkify_KeepsEverySentence(t *testing.T) {
	var sentences []string
	for i := 0; i < 400; i++ {
		words := make([]string, 3+i%17)
		for j := range words {
			words[j] = fmt.Sprintf("s%dw%d", i, j)
		}
		sentences = append(sentences, strings.Join(words, " ")+".")
	}

	chunks := Chunkify(strings.Join(sentences, " "), 800, 150)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}

	for _, s := range sentences {
		found := false
		for _, c := range chunks {
			if strings.Contains(c, s) {
				found = true
				break
			}
		}
		assert.True(t, found, "sentence %q is missing from every chunk", s)
	}
}

func Test_SentenceChunkifier_OverlapSentences(t *testing.T) {
	c := &SentenceChunkifier{ChunkSize: 4, OverlapSentences: 1}
	out := c.Chunkify("a b. c d. e f. g h.")

	assert.Equal(t, []string{"a b. c d.", "c d. e f.", "e f. g h."}, out)
}

func Test_SentenceChunkifier_NoOverlap(t *testing.T) {
	c := &SentenceChunkifier{ChunkSize: 4, OverlapSentences: 0}
	out := c.Chunkify("a b. c d. e f. g h.")

	assert.Equal(t, []string{"a b. c d.", "e f. g h."}, out)
}
