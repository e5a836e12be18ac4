// ABOUTME: Sentence-based text chunker for memory ingestion
// ABOUTME: Splits content into chunks of roughly chunk_size characters with configurable overlap

package memory

import (
	"strings"
)

// chunkText splits text into chunks of at most size characters, preferring
// sentence boundaries, with roughly overlap characters carried between
// consecutive chunks. Short text returns a single chunk.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	sentences := splitSentences(text)

	var chunks []string
	var current []string
	currentLen := 0
	hasNew := false // whether current holds anything beyond carried overlap

	flush := func() {
		// Carried overlap with nothing new behind it is not a chunk
		if !hasNew || len(current) == 0 {
			current = nil
			currentLen = 0
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Carry trailing sentences into the next chunk as overlap
		var carried []string
		carriedLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			if carriedLen+len(current[i]) > overlap {
				break
			}
			carried = append([]string{current[i]}, carried...)
			carriedLen += len(current[i]) + 1
		}
		current = carried
		currentLen = carriedLen
		hasNew = false
	}

	for _, sentence := range sentences {
		// A single oversized sentence becomes its own hard-split chunks
		if len(sentence) > size {
			flush()
			current = nil
			currentLen = 0
			hasNew = false
			for start := 0; start < len(sentence); start += size {
				end := start + size
				if end > len(sentence) {
					end = len(sentence)
				}
				chunks = append(chunks, sentence[start:end])
			}
			continue
		}

		if currentLen+len(sentence)+1 > size {
			flush()
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
		hasNew = true
	}

	if hasNew {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// splitSentences splits text on sentence-ending punctuation and newlines,
// keeping the punctuation attached to the sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		switch r {
		case '\n':
			flush()
		case '.', '!', '?':
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return sentences
}
