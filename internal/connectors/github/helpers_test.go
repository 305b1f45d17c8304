package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/retry"
)

var testRepo = domain.RepositoryID{Owner: "acme", Name: "widgets"}

// newTestClient starts a server for mux and returns a client pointed at it
// with throttling and retry waits disabled.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClientWithHTTPClient(srv.Client(),
		WithRateLimiter(NewRateLimiterWithRate(0, 1)),
		WithRetryPolicy(retry.NoWait()),
	)
	require.NoError(t, client.SetBaseURL(srv.URL))
	return client
}

// writeJSON encodes v as the response body.
func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// servePage writes one page of items, adding a Link header when more
// pages follow.
func servePage[T any](t *testing.T, w http.ResponseWriter, r *http.Request, items []T) {
	t.Helper()
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 30
	}

	start := (page - 1) * perPage
	if start > len(items) {
		start = len(items)
	}
	end := min(start+perPage, len(items))

	if end < len(items) {
		next := fmt.Sprintf("http://%s%s?page=%d&per_page=%d", r.Host, r.URL.Path, page+1, perPage)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}
	writeJSON(t, w, items[start:end])
}

// serveRepo registers the repository endpoint with a default branch.
func serveRepo(t *testing.T, mux *http.ServeMux) {
	mux.HandleFunc("GET /repos/acme/widgets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"name":           "widgets",
			"full_name":      "acme/widgets",
			"default_branch": "main",
			"has_issues":     true,
			"description":    "Widgets for everyone",
		})
	})
}
