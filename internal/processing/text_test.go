package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paperscout/internal/processing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "keeps punctuation", input: "Attention is all you need!", want: "Attention is all you need!"},
		{name: "html entities", input: "BERT &amp; GPT", want: "BERT & GPT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.NormalizeText(tt.input))
		})
	}
}

func TestBuildChunkIDDeterministic(t *testing.T) {
	id1 := processing.BuildChunkID("papers/transformer.pdf", 9, "some chunk text")
	id2 := processing.BuildChunkID("papers/transformer.pdf", 9, "some chunk text")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)

	other := processing.BuildChunkID("papers/transformer.pdf", 10, "some chunk text")
	require.NotEqual(t, id1, other)
}

func TestTitleFromSource(t *testing.T) {
	require.Equal(t, "transformer", processing.TitleFromSource("papers/transformer.pdf"))
	require.Equal(t, "bert", processing.TitleFromSource("bert.pdf"))
	require.Equal(t, "notes", processing.TitleFromSource("a/b/notes"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", processing.Truncate("short", 10))
	require.Equal(t, "абвг...", processing.Truncate("абвгде", 4))
	require.Equal(t, "", processing.Truncate("anything", 0))
}
