package extract

import "strings"

// chunkContent splits content into overlapping windows of at most maxChars
// characters. Offsets are character (rune) positions, monotonic across the
// sequence; consecutive chunks overlap by up to overlap characters and
// never skip content.
func chunkContent(content string, maxChars, overlap int) []Chunk {
	if content == "" || maxChars <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = 0
	}

	runes := []rune(content)
	n := len(runes)
	step := maxChars - overlap

	var chunks []Chunk
	for start := 0; start < n; start += step {
		end := start + maxChars
		if end > n {
			end = n
		}
		text := string(runes[start:end])
		tokens := estimateTokens(text)
		chunks = append(chunks, Chunk{
			Content: text,
			Metadata: ChunkMetadata{
				CharStart:  start,
				CharEnd:    end,
				TokenCount: &tokens,
				ChunkIndex: len(chunks),
			},
		})
		if end == n {
			break
		}
	}

	for i := range chunks {
		chunks[i].Metadata.TotalChunks = len(chunks)
	}
	return chunks
}

// estimateTokens approximates a token count at ~1.3 tokens per word.
func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}
