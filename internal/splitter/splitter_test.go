// ABOUTME: Tests for message splitting
// ABOUTME: Covers length limits, code block preservation, round-trips, and estimation

package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stripSpace removes all whitespace so round-trip checks can ignore the
// trimming Split applies at chunk boundaries.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func assertChunksWithinLimit(t *testing.T, chunks []string, maxLength int) {
	t.Helper()
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), maxLength, "chunk %d over limit", i)
	}
}

func TestSplit_ShortContentSingleChunk(t *testing.T) {
	chunks := Split("hello world", 2000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplit_EmptyContent(t *testing.T) {
	chunks := Split("", 2000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0])
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	content := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
	chunks := Split(content, 50)

	require.Greater(t, len(chunks), 1)
	assertChunksWithinLimit(t, chunks, 50)
	assert.Equal(t, stripSpace(content), stripSpace(strings.Join(chunks, "")))

	// Sentences stay intact: every chunk ends with terminal punctuation.
	for _, c := range chunks {
		assert.Regexp(t, `[.!?]$`, c)
	}
}

func TestSplit_LongSentenceFallsBackToWords(t *testing.T) {
	content := strings.Repeat("word ", 40) + "end."
	chunks := Split(content, 60)

	require.Greater(t, len(chunks), 1)
	assertChunksWithinLimit(t, chunks, 60)
	assert.Equal(t, stripSpace(content), stripSpace(strings.Join(chunks, "")))
}

func TestSplit_OversizedWordHardSliced(t *testing.T) {
	content := strings.Repeat("x", 250)
	chunks := Split(content, 100)

	require.Len(t, chunks, 3)
	assertChunksWithinLimit(t, chunks, 100)
	assert.Equal(t, content, strings.Join(chunks, ""))
}

func TestSplit_CodeBlockKeptIntact(t *testing.T) {
	block := "```go\nfmt.Println(\"hi\")\n```"
	content := strings.Repeat("Padding sentence here. ", 10) + block + " Trailing text."
	chunks := Split(content, 120)

	assertChunksWithinLimit(t, chunks, 120)

	// The complete block appears in exactly one chunk.
	found := 0
	for _, c := range chunks {
		if strings.Contains(c, block) {
			found++
		}
	}
	assert.Equal(t, 1, found)
}

func TestSplit_OversizedCodeBlockReopensFence(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("```python\n")
	for i := 0; i < 30; i++ {
		sb.WriteString("print('line line line line')\n")
	}
	sb.WriteString("```")

	chunks := Split(sb.String(), 200)

	require.Greater(t, len(chunks), 1)
	assertChunksWithinLimit(t, chunks, 200)

	// Every chunk is a self-contained fenced block with the language tag.
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, "```python\n"), "chunk missing opening fence: %q", c)
		assert.True(t, strings.HasSuffix(c, "```"), "chunk missing closing fence: %q", c)
	}
}

func TestSplit_MixedTextAndCode(t *testing.T) {
	content := "Intro sentence one. Intro sentence two. " +
		"```js\nconsole.log(1)\n```" +
		" Outro sentence one. Outro sentence two."
	chunks := Split(content, 60)

	assertChunksWithinLimit(t, chunks, 60)
	assert.Contains(t, strings.Join(chunks, ""), "console.log(1)")
}

func TestSplit_RoundTrip(t *testing.T) {
	cases := map[string]string{
		"sentences": "Alpha beta gamma. Delta epsilon zeta. Eta theta iota kappa. Lambda mu nu xi.",
		"words":     strings.Repeat("lorem ipsum dolor ", 20),
		"unbroken":  strings.Repeat("a", 333),
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			chunks := Split(content, 48)
			assertChunksWithinLimit(t, chunks, 48)
			assert.Equal(t, stripSpace(content), stripSpace(strings.Join(chunks, "")))
		})
	}
}

func TestSplit_RuneAwareLengths(t *testing.T) {
	content := strings.Repeat("héllo wörld ", 30)
	chunks := Split(content, 40)

	assertChunksWithinLimit(t, chunks, 40)
	assert.Equal(t, stripSpace(content), stripSpace(strings.Join(chunks, "")))
}

func TestEstimateChunks(t *testing.T) {
	assert.Equal(t, 1, EstimateChunks("short", 2000))
	assert.Equal(t, 1, EstimateChunks(strings.Repeat("a", 2000), 2000))
	assert.Equal(t, 2, EstimateChunks(strings.Repeat("a", 2001), 2000))
	assert.Equal(t, 3, EstimateChunks(strings.Repeat("a", 250), 100))
}

func TestEstimateChunks_MatchesSplitOnExactInputs(t *testing.T) {
	// For unbroken runs the split is a pure ceiling division, so the
	// estimate is exact.
	for _, n := range []int{50, 100, 101, 250, 999} {
		content := strings.Repeat("z", n)
		assert.Equal(t, EstimateChunks(content, 100), len(Split(content, 100)), "n=%d", n)
	}
}
