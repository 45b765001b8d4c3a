package extraction

import "strings"

// splitChunks breaks a document into pieces no longer than maxChars,
// preferring paragraph boundaries and falling back to sentence boundaries
// for paragraphs that are themselves too long.
func splitChunks(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > maxChars {
			// Sentence-boundary fallback for oversized paragraphs.
			for _, sentence := range splitSentences(paragraph) {
				if current.Len()+len(sentence)+1 > maxChars {
					flush()
				}
				current.WriteString(sentence)
				current.WriteString(" ")
			}
			continue
		}

		if current.Len()+len(paragraph)+2 > maxChars {
			flush()
		}
		current.WriteString(paragraph)
		current.WriteString("\n\n")
	}
	flush()
	return chunks
}

// splitSentences splits on terminal punctuation followed by whitespace.
// Not linguistically perfect, but chunk boundaries only need to be
// approximately sentence-shaped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
