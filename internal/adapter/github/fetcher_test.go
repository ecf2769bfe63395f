package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"

	"github.com/google/go-github/v53/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchNow = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

// newTestFetcher points a Fetcher at a stub GitHub API.
func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return &Fetcher{
		client:         client,
		includePrivate: true,
		nowFunc:        func() time.Time { return fetchNow },
	}, server
}

func TestListRepositories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{
			"id": 1,
			"full_name": "octo/invoice-ocr",
			"name": "invoice-ocr",
			"html_url": "https://github.com/octo/invoice-ocr",
			"description": "OCR automation",
			"language": "Python",
			"topics": ["ai", "ocr"],
			"stargazers_count": 12,
			"forks_count": 3,
			"open_issues_count": 2,
			"size": 2048,
			"created_at": "2024-01-01T00:00:00Z",
			"updated_at": "2025-06-01T00:00:00Z",
			"pushed_at": "2025-06-10T00:00:00Z",
			"fork": false,
			"archived": false,
			"private": true
		}]`)
	})
	mux.HandleFunc("/repos/octo/invoice-ocr/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Python": 120000, "HTML": 8000}`)
	})
	mux.HandleFunc("/repos/octo/invoice-ocr/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// "# Hello" base64 encoded
		fmt.Fprint(w, `{"type": "file", "encoding": "base64", "name": "README.md", "path": "README.md", "content": "IyBIZWxsbw=="}`)
	})

	fetcher, _ := newTestFetcher(t, mux)

	repos, err := fetcher.ListRepositories(context.Background(), "octo")
	require.NoError(t, err)
	require.Len(t, repos, 1)

	repo := repos[0]
	assert.Equal(t, "octo/invoice-ocr", repo.FullName)
	assert.Equal(t, "octo", repo.Owner)
	assert.Equal(t, "invoice-ocr", repo.Name)
	assert.Equal(t, "Python", repo.Language)
	assert.Equal(t, []string{"ai", "ocr"}, repo.Topics)
	assert.Equal(t, 12, repo.Stars)
	assert.Equal(t, 3, repo.Forks)
	assert.Equal(t, 2048, repo.SizeKB)
	assert.True(t, repo.IsPrivate)
	assert.Equal(t, map[string]int{"Python": 120000, "HTML": 8000}, repo.Languages)
	assert.Equal(t, len("# Hello"), repo.ReadmeLength)
	assert.Equal(t, fetchNow, repo.FetchedAt)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), repo.PushedAt)
}

func TestListRepositories_EnrichmentFailuresTolerated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id": 1, "full_name": "octo/bare", "name": "bare", "size": 100}]`)
	})
	// languages and readme endpoints 404

	fetcher, _ := newTestFetcher(t, mux)

	repos, err := fetcher.ListRepositories(context.Background(), "octo")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Empty(t, repos[0].Languages)
	assert.Zero(t, repos[0].ReadmeLength)
}

func TestListRepositories_PrivateVisibility(t *testing.T) {
	t.Run("authenticated fetcher lists its own repos with all visibilities", func(t *testing.T) {
		mux := http.NewServeMux()
		var visibility string
		mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
			visibility = r.URL.Query().Get("visibility")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[
				{"id": 1, "full_name": "octo/public-tool", "name": "public-tool", "size": 100},
				{"id": 2, "full_name": "octo/secret-sauce", "name": "secret-sauce", "size": 100, "private": true}
			]`)
		})

		fetcher, _ := newTestFetcher(t, mux)
		fetcher.authenticated = true

		repos, err := fetcher.ListRepositories(context.Background(), "octo")
		require.NoError(t, err)
		assert.Equal(t, "all", visibility)
		require.Len(t, repos, 2)
		assert.True(t, repos[1].IsPrivate)
	})

	t.Run("private repos are dropped when excluded", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[
				{"id": 1, "full_name": "octo/public-tool", "name": "public-tool", "size": 100},
				{"id": 2, "full_name": "octo/secret-sauce", "name": "secret-sauce", "size": 100, "private": true}
			]`)
		})

		fetcher, _ := newTestFetcher(t, mux)
		fetcher.includePrivate = false

		repos, err := fetcher.ListRepositories(context.Background(), "octo")
		require.NoError(t, err)
		require.Len(t, repos, 1)
		assert.Equal(t, "octo/public-tool", repos[0].FullName)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode string
	}{
		{
			name:         "rate limit is transient",
			err:          &github.RateLimitError{},
			expectedCode: common.ErrCodeTransientUpstream,
		},
		{
			name:         "abuse rate limit is transient",
			err:          &github.AbuseRateLimitError{},
			expectedCode: common.ErrCodeTransientUpstream,
		},
		{
			name: "unauthorized is a configuration error",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnauthorized},
			},
			expectedCode: common.ErrCodeConfiguration,
		},
		{
			name: "forbidden is a configuration error",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusForbidden},
			},
			expectedCode: common.ErrCodeConfiguration,
		},
		{
			name: "server error is transient",
			err: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusBadGateway},
			},
			expectedCode: common.ErrCodeTransientUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err, "list repositories")
			assert.Equal(t, tt.expectedCode, common.CodeOf(classified))
		})
	}
}

func TestSplitFullName(t *testing.T) {
	owner, name := splitFullName("octo/tool")
	assert.Equal(t, "octo", owner)
	assert.Equal(t, "tool", name)

	owner, name = splitFullName("bare")
	assert.Empty(t, owner)
	assert.Equal(t, "bare", name)
}
