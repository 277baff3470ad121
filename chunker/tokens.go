package chunker

// CounterFunc counts the tokens in a piece of text. Implementations may
// call out to a real tokenizer; an error makes the chunker fall back to a
// fixed-ratio character estimate for that fragment.
type CounterFunc func(text string) (int, error)

// EstimateTokens estimates the token count for a given text using a Unicode-aware heuristic.
// ASCII characters (English, numbers, punctuation) are weighted at ~4 per token.
// Non-ASCII characters (CJK, Cyrillic, Arabic, Emoji, etc.) are weighted at ~1 per token.
func EstimateTokens(text string) (int, error) {
	weight := 0
	for _, r := range text {
		switch {
		case r <= 127: // ASCII (English, numbers, punctuation)
			weight += 1 // ~4 ASCII chars = 1 token
		default: // Non-ASCII (CJK, Cyrillic, Arabic, Emoji, etc.)
			weight += 4 // ~1 non-ASCII char = 1 token (conservative)
		}
	}
	return (weight + 3) / 4, nil
}
