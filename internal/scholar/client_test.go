package scholar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"paperscout/internal/scholar"
)

func TestSearchBuildsScholarQuery(t *testing.T) {
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"engine":  r.URL.Query().Get("engine"),
			"q":       r.URL.Query().Get("q"),
			"hl":      r.URL.Query().Get("hl"),
			"gl":      r.URL.Query().Get("gl"),
			"api_key": r.URL.Query().Get("api_key"),
		}

		resp := map[string]any{
			"organic_results": []map[string]any{
				{
					"title":   "Attention Is All You Need",
					"link":    "https://example.org/transformer",
					"snippet": "We propose the Transformer.",
					"publication_info": map[string]any{
						"summary": "A Vaswani et al. 2017",
					},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := scholar.New("test-key").WithBaseURL(srv.URL)

	results, err := client.Search(context.Background(), "transformer attention")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Attention Is All You Need", results[0].Title)
	require.Equal(t, "A Vaswani et al. 2017", results[0].Summary)

	require.Equal(t, "google_scholar", gotQuery["engine"])
	require.Equal(t, "transformer attention", gotQuery["q"])
	require.Equal(t, "ko", gotQuery["hl"])
	require.Equal(t, "kr", gotQuery["gl"])
	require.Equal(t, "test-key", gotQuery["api_key"])
}

func TestSearchRequiresAPIKey(t *testing.T) {
	client := scholar.New("")
	_, err := client.Search(context.Background(), "anything")
	require.ErrorIs(t, err, scholar.ErrMissingAPIKey)
}

func TestSearchFormatted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"organic_results": []map[string]any{
				{"title": "Paper One", "link": "https://example.org/1"},
				{"title": "Paper Two", "snippet": "Second snippet."},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := scholar.New("key").WithBaseURL(srv.URL)

	out, err := client.SearchFormatted(context.Background(), "q")
	require.NoError(t, err)
	require.Contains(t, out, "[1] Paper One")
	require.Contains(t, out, "https://example.org/1")
	require.Contains(t, out, "[2] Paper Two")
	require.Contains(t, out, "Second snippet.")
}

func TestSearchFormattedEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{}))
	}))
	defer srv.Close()

	client := scholar.New("key").WithBaseURL(srv.URL)

	out, err := client.SearchFormatted(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "No results found on Google Scholar.", out)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	client := scholar.New("bad").WithBaseURL(srv.URL)

	_, err := client.Search(context.Background(), "q")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid API key")
}
