package summarize

import "fmt"

const (
	// DefaultMaxTokens keeps each chunk safely under common seq2seq input limits (1024).
	DefaultMaxTokens = 900

	// DefaultOverlap is the number of tokens repeated across a chunk boundary.
	DefaultOverlap = 50
)

// Chunk splits text into overlapping pieces of at most maxTokens tokens each,
// measured with tok. Chunks are returned in left-to-right order.
//
// Text that fits in one window is returned unchanged as the only chunk.
// Otherwise each window [start, end) is decoded with tok and the next window
// starts overlap tokens before end. When overlap >= maxTokens the window would
// not move forward, so that step starts at end instead.
func Chunk(text string, tok Tokenizer, maxTokens, overlap int) ([]string, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxTokens)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOverlap, overlap)
	}

	ids, err := tok.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	n := len(ids)
	if n <= maxTokens {
		return []string{text}, nil
	}

	chunks := make([]string, 0, chunkCount(n, maxTokens, overlap))
	start := 0
	for start < n {
		end := min(start+maxTokens, n)

		piece, err := tok.Detokenize(ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("detokenize tokens [%d:%d]: %w", start, end, err)
		}
		chunks = append(chunks, piece)

		if end == n {
			break
		}

		next := max(end-overlap, 0)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// chunkCount estimates the number of windows for capacity planning.
func chunkCount(n, maxTokens, overlap int) int {
	step := maxTokens - overlap
	if step <= 0 {
		step = maxTokens
	}
	if n <= maxTokens {
		return 1
	}
	return 1 + (n-maxTokens+step-1)/step
}
