package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"path"
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeText decodes HTML entities and squeezes whitespace. Chunk text is
// stored with punctuation intact so BM25 and the embedding model see the
// original wording.
func NormalizeText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// BuildChunkID hashes the stable chunk fields to form deterministic IDs, so
// reindexing the same page produces the same documents.
func BuildChunkID(source string, page int, text string) string {
	s := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", source, page, text)))
	return hex.EncodeToString(s[:])
}

// TitleFromSource derives a display title from a source path:
// "papers/transformer.pdf" -> "transformer".
func TitleFromSource(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return source
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Truncate shortens a snippet to at most max runes, appending an ellipsis
// when text was cut.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
