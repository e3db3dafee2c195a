package vectoradapter

import (
	"strconv"
	"strings"
)

// maxChunkRunes bounds each chunk's size; large texts are split on line
// boundaries where possible (spec §4.2: "line- or token-bounded").
const maxChunkRunes = 1000

// TextChunk is one piece of a chunked upsert; chunked ids use the form
// `<parent>_chunk_<n>` so the retrieval engine can dedup back to the
// parent (spec §4.2, §9 "Chunked embeddings").
type TextChunk struct {
	ID   string
	Text string
}

// Chunk splits text into line-bounded pieces, starting a new piece before a
// line would push the current one past maxChunkRunes (measured in bytes in
// the split loop). A single line longer than the limit is not split and
// becomes one oversized piece. A text that fits in one chunk keeps the parent id
// unchanged — chunk ids only appear once a parent is actually split.
func Chunk(parentID, text string) []TextChunk {
	if len([]rune(text)) <= maxChunkRunes {
		return []TextChunk{{ID: parentID, Text: text}}
	}

	lines := strings.Split(text, "\n")
	var chunks []TextChunk
	var current strings.Builder
	n := 0
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, TextChunk{ID: parentChunkID(parentID, n), Text: current.String()})
		n++
		current.Reset()
	}
	for _, line := range lines {
		if current.Len()+len(line)+1 > maxChunkRunes {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	if len(chunks) == 0 {
		return []TextChunk{{ID: parentID, Text: text}}
	}
	return chunks
}

// ParentOf reverses parentChunkID, recovering the canonical parent id from
// a chunk id — required before ranking (spec §9: "parent-of-chunk
// deduplication... must happen before ranking").
func ParentOf(id string) string {
	idx := strings.LastIndex(id, "_chunk_")
	if idx < 0 {
		return id
	}
	return id[:idx]
}

func parentChunkID(parentID string, n int) string {
	return parentID + "_chunk_" + strconv.Itoa(n)
}
