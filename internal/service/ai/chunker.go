package ai

import "strings"

const defaultFlushWords = 8

// chunkBuffer accumulates streamed text fragments and releases speakable
// segments: a segment closes at sentence or clause punctuation, or once the
// word-count threshold is crossed at a word boundary. Not safe for concurrent
// use; each stream owns its own buffer.
type chunkBuffer struct {
	buf        strings.Builder
	words      int
	flushWords int
}

func newChunkBuffer(flushWords int) *chunkBuffer {
	if flushWords <= 0 {
		flushWords = defaultFlushWords
	}
	return &chunkBuffer{flushWords: flushWords}
}

// Add appends a fragment and returns any segments that became ready.
func (b *chunkBuffer) Add(text string) []string {
	var out []string
	for _, r := range text {
		b.buf.WriteRune(r)
		switch {
		case isFlushPunct(r):
			if seg := b.take(); seg != "" {
				out = append(out, seg)
			}
		case r == ' ':
			b.words++
			if b.words >= b.flushWords {
				if seg := b.take(); seg != "" {
					out = append(out, seg)
				}
			}
		}
	}
	return out
}

// Flush drains whatever remains after the stream ends.
func (b *chunkBuffer) Flush() string {
	return b.take()
}

func (b *chunkBuffer) take() string {
	seg := strings.TrimSpace(b.buf.String())
	b.buf.Reset()
	b.words = 0
	return seg
}

func isFlushPunct(r rune) bool {
	switch r {
	case '.', '!', '?', ',', ';', ':', '。', '！', '？', '，', '；', '：':
		return true
	}
	return false
}
