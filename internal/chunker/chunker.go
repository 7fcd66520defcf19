// Package chunker splits document text into overlapping, size-bounded chunks
// with stable identifiers and source metadata.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Chunker splits text into chunks of at most Size characters, consecutive
// chunks sharing Overlap characters. The split prefers sentence and paragraph
// boundaries within a lookback window before falling back to a hard cut.
type Chunker struct {
	size    int
	overlap int
}

// New validates the chunking parameters. Overlap must be smaller than size and
// both must be positive.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d and overlap %d must be positive", models.ErrInvalidConfig, size, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", models.ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// boundary characters preferred as chunk ends, checked after the cut point.
func isBoundary(b byte) bool {
	switch b {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// runeStart backs i up to the nearest UTF-8 rune start at or before it, so a
// cut never lands inside a multibyte sequence.
func runeStart(text string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// Split chunks the document text. Chunk IDs derive from the document ID and
// start offset, so splitting the same document twice yields identical chunks.
// Offsets are byte positions into the original text; slicing the document text
// with them reproduces each chunk exactly. Cuts always fall on rune
// boundaries, so every chunk is valid UTF-8. Whitespace-only documents produce
// no chunks. No I/O happens here.
func (c *Chunker) Split(doc models.Document) []models.Chunk {
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Lookback window for boundary scanning. Capped so that even a
	// boundary-shortened chunk still advances past the overlap.
	window := c.size / 10
	if max := c.size - c.overlap - 1; window > max {
		window = max
	}

	var chunks []models.Chunk
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			cut := start
			for i := end; i > end-window; i-- {
				if isBoundary(text[i-1]) {
					cut = i
					break
				}
			}
			if cut > start {
				// Boundary bytes are ASCII, so cut is a rune start.
				end = cut
			} else {
				end = runeStart(text, end)
				if end <= start {
					// A rune wider than the chunk size; emit it whole.
					_, n := utf8.DecodeRuneInString(text[start:])
					end = start + n
				}
			}
		}

		chunks = append(chunks, models.Chunk{
			ChunkID:     models.NewChunkID(doc.ID, start),
			DocumentID:  doc.ID,
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
			Metadata:    cloneMetadata(doc.Metadata),
		})

		if end == len(text) {
			break
		}
		next := runeStart(text, end-c.overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// Reassemble concatenates chunks in offset order, dropping the overlapping
// prefix of each subsequent chunk, and returns the reconstructed source text.
// Chunks must come from a single Split call in their original order.
func Reassemble(chunks []models.Chunk) string {
	var sb strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		text := ch.Text
		if i > 0 && ch.StartOffset < prevEnd {
			text = text[prevEnd-ch.StartOffset:]
		}
		sb.WriteString(text)
		prevEnd = ch.EndOffset
	}
	return sb.String()
}

func cloneMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
