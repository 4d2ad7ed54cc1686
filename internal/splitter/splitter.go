// ABOUTME: Splits outbound messages into chunks that fit the transport's length limit
// ABOUTME: Preserves fenced code blocks and sentence boundaries where possible

package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	sentenceRe  = regexp.MustCompile(`[.!?]+\s+`)
)

// Split breaks content into chunks of at most maxLength runes each,
// preserving original order. Content containing fenced code blocks is
// split at block boundaries so each chunk stays syntactically
// self-contained; plain text is split at sentence boundaries, falling
// back to words, and finally to a hard rune slice for oversized words.
func Split(content string, maxLength int) []string {
	if utf8.RuneCountInString(content) <= maxLength {
		return []string{content}
	}

	if strings.Contains(content, "```") {
		return splitWithCodeBlocks(content, maxLength)
	}
	return splitSentences(content, maxLength)
}

// EstimateChunks returns the number of chunks Split would need for
// content of this length, without performing the split. This is a
// ceiling division, used for capacity planning.
func EstimateChunks(content string, maxLength int) int {
	n := utf8.RuneCountInString(content)
	if n <= maxLength {
		return 1
	}
	return (n + maxLength - 1) / maxLength
}

// splitWithCodeBlocks splits content into alternating plain/code parts at
// fence boundaries, accumulating plain parts and keeping blocks intact
// where they fit.
func splitWithCodeBlocks(content string, maxLength int) []string {
	var chunks []string
	var current string

	for _, part := range splitParts(content) {
		isCodeBlock := strings.HasPrefix(part, "```") && strings.HasSuffix(part, "```")

		if isCodeBlock {
			if utf8.RuneCountInString(part) > maxLength {
				// Block too large for one chunk: flush pending text and
				// re-split the block by its own lines.
				if current != "" {
					chunks = append(chunks, current)
					current = ""
				}
				chunks = append(chunks, splitCodeBlock(part, maxLength)...)
			} else if utf8.RuneCountInString(current)+utf8.RuneCountInString(part) > maxLength {
				if current != "" {
					chunks = append(chunks, current)
				}
				current = part
			} else {
				current += part
			}
			continue
		}

		// Plain text between blocks
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(part) > maxLength {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}

			textChunks := splitSentences(part, maxLength)
			if len(textChunks) > 0 {
				chunks = append(chunks, textChunks[:len(textChunks)-1]...)
				current = textChunks[len(textChunks)-1]
			}
		} else {
			current += part
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// splitParts divides content into a sequence of plain-text and fenced
// code-block segments, preserving all bytes.
func splitParts(content string) []string {
	var parts []string
	last := 0
	for _, loc := range codeBlockRe.FindAllStringIndex(content, -1) {
		if loc[0] > last {
			parts = append(parts, content[last:loc[0]])
		}
		parts = append(parts, content[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(content) {
		parts = append(parts, content[last:])
	}
	return parts
}

// splitCodeBlock re-splits an oversized fenced block by its internal
// lines, re-opening a fresh fence on each new chunk so every chunk
// remains a valid block.
func splitCodeBlock(block string, maxLength int) []string {
	lines := strings.Split(block, "\n")
	if len(lines) < 2 {
		return hardSplit(block, maxLength)
	}

	fence := lines[0] // opening fence, including any language tag
	var chunks []string

	current := fence + "\n"
	for _, line := range lines[1 : len(lines)-1] {
		// +5 leaves room for the newline and closing fence
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(line)+5 > maxLength {
			current += "```"
			chunks = append(chunks, current)
			current = fence + "\n"
		}
		current += line + "\n"
	}
	current += "```"
	chunks = append(chunks, current)

	return chunks
}

// splitSentences accumulates sentences into chunks up to the limit.
// A single sentence over the limit is split by words.
func splitSentences(content string, maxLength int) []string {
	var chunks []string
	var current string

	for _, sentence := range splitAfterSentences(content) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > maxLength {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}

			if utf8.RuneCountInString(sentence) > maxLength {
				wordChunks := splitWords(sentence, maxLength)
				if len(wordChunks) > 0 {
					chunks = append(chunks, wordChunks[:len(wordChunks)-1]...)
					current = wordChunks[len(wordChunks)-1]
				} else {
					current = ""
				}
			} else {
				current = sentence
			}
		} else {
			current += sentence
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}

// splitAfterSentences splits content after each run of terminal
// punctuation plus trailing whitespace, keeping the delimiter attached
// to the sentence it ends.
func splitAfterSentences(content string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(content, -1) {
		sentences = append(sentences, content[last:loc[1]])
		last = loc[1]
	}
	if last < len(content) {
		sentences = append(sentences, content[last:])
	}
	return sentences
}

// splitWords accumulates whitespace-delimited words into chunks.
// A single word over the limit is hard-sliced at the rune boundary.
func splitWords(content string, maxLength int) []string {
	var chunks []string
	var current string

	for _, word := range strings.Fields(content) {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(word)+1 > maxLength {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
			}

			if utf8.RuneCountInString(word) > maxLength {
				chunks = append(chunks, hardSplit(word, maxLength)...)
				current = ""
			} else {
				current = word
			}
		} else {
			if current != "" {
				current += " "
			}
			current += word
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}

// hardSplit slices content into maxLength-rune pieces with no regard for
// boundaries. Last resort for unbroken runs.
func hardSplit(content string, maxLength int) []string {
	runes := []rune(content)
	var chunks []string
	for i := 0; i < len(runes); i += maxLength {
		end := i + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
