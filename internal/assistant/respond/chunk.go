package respond

import "unicode"

// DefaultChunkLimit is the transport's per-send size limit in runes.
const DefaultChunkLimit = 2000

// Split breaks text into chunks of at most limit runes, emitted in order.
// Within each chunk it prefers to break at the last whitespace found in the
// trailing half; the whitespace itself is consumed by the break. When a
// chunk contains no such whitespace the cut is a hard one, and concatenating
// the chunks reproduces the input exactly.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	runes := []rune(text)
	if len(runes) <= limit {
		if len(runes) == 0 {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		consumed := cut

		// Look for whitespace in the trailing half of the candidate chunk.
		for i := limit - 1; i >= limit/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				consumed = i + 1 // drop the break character
				break
			}
		}

		chunks = append(chunks, string(runes[:cut]))
		runes = runes[consumed:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
