package parser

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxChars is the character budget for a paragraph chunk.
	DefaultMaxChars = 1200
	// DefaultChunkWords is the window size for word chunking.
	DefaultChunkWords = 250
	// DefaultChunkOverlap is the word overlap between adjacent windows.
	DefaultChunkOverlap = 50
)

// ChunkParagraphs merges consecutive non-blank paragraphs until the
// character budget is reached. Deterministic for identical input.
func ChunkParagraphs(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if s := strings.TrimSpace(p); s != "" {
			paras = append(paras, s)
		}
	}

	var chunks []string
	var buf []string
	size := 0
	for _, p := range paras {
		addLen := len(p)
		if len(buf) > 0 {
			addLen += 2
		}
		if size+addLen <= maxChars {
			buf = append(buf, p)
			size += addLen
		} else {
			if len(buf) > 0 {
				chunks = append(chunks, strings.Join(buf, "\n\n"))
			}
			buf = []string{p}
			size = len(p)
		}
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, "\n\n"))
	}
	return chunks
}

var wordSplitRe = regexp.MustCompile(`\s+`)

// ChunkWords splits text into fixed-size word windows with overlap.
func ChunkWords(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	words := wordSplitRe.Split(strings.TrimSpace(text), -1)
	if len(words) == 1 && words[0] == "" {
		return nil
	}

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		if end > i {
			chunks = append(chunks, strings.Join(words[i:end], " "))
		}
		if end == len(words) {
			break
		}
	}
	return chunks
}
