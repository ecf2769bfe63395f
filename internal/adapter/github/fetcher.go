// Package github adapts the GitHub API to the port.MetadataSource
// capability: list the owner's repositories with the attributes the
// scoring engine needs. Rate-limit exhaustion surfaces as a retryable
// failure, never a fatal one.
package github

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/domain"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

const perPage = 100

// Fetcher implements port.MetadataSource.
type Fetcher struct {
	client         *github.Client
	authenticated  bool
	includePrivate bool
	nowFunc        func() time.Time
}

// NewFetcher initializes the GitHub client. An empty token means
// anonymous access (60 requests/hour), which only works for public repos.
func NewFetcher(token string, includePrivate bool) *Fetcher {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	return &Fetcher{
		client:         client,
		authenticated:  token != "",
		includePrivate: includePrivate,
		nowFunc:        time.Now,
	}
}

// ListRepositories pages through the owner's repositories and enriches
// each with its language breakdown and README length. Private
// repositories only come back through the authenticated-user listing,
// so an authenticated fetcher that wants them lists its own repos
// regardless of the configured owner name.
func (f *Fetcher) ListRepositories(ctx context.Context, owner string) ([]*domain.Repository, error) {
	if f.includePrivate && f.authenticated {
		owner = ""
	}

	var repos []*domain.Repository
	page := 1

	for {
		var batch []*github.Repository
		var resp *github.Response
		err := common.Do(ctx, func() error {
			var apiErr error
			batch, resp, apiErr = f.listPage(ctx, owner, page)
			return apiErr
		},
			common.WithMaxRetries(3),
			common.WithInitialDelay(time.Second),
		)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("list repositories page %d", page))
		}

		fetchedAt := f.nowFunc()
		for _, item := range batch {
			if item.GetPrivate() && !f.includePrivate {
				continue
			}
			repos = append(repos, f.convert(ctx, item, fetchedAt))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	return repos, nil
}

func (f *Fetcher) listPage(ctx context.Context, owner string, page int) ([]*github.Repository, *github.Response, error) {
	opts := &github.RepositoryListOptions{
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}
	if owner == "" {
		opts.Visibility = "public"
		if f.includePrivate {
			opts.Visibility = "all"
		}
	}
	return f.client.Repositories.List(ctx, owner, opts)
}

// convert maps the GitHub DTO to the domain entity. Enrichment failures
// (languages, README) are logged and tolerated; the repository still
// lands in the inventory with zero values for those attributes.
func (f *Fetcher) convert(ctx context.Context, item *github.Repository, fetchedAt time.Time) *domain.Repository {
	fullName := item.GetFullName()
	owner, name := splitFullName(fullName)

	repo := &domain.Repository{
		FullName:    fullName,
		Owner:       owner,
		Name:        name,
		URL:         item.GetHTMLURL(),
		Description: item.GetDescription(),
		Language:    item.GetLanguage(),
		Topics:      item.Topics,
		Stars:       item.GetStargazersCount(),
		Forks:       item.GetForksCount(),
		OpenIssues:  item.GetOpenIssuesCount(),
		SizeKB:      item.GetSize(),
		CreatedAt:   item.GetCreatedAt().Time,
		UpdatedAt:   item.GetUpdatedAt().Time,
		PushedAt:    item.GetPushedAt().Time,
		IsFork:      item.GetFork(),
		IsArchived:  item.GetArchived(),
		IsPrivate:   item.GetPrivate(),
		FetchedAt:   fetchedAt,
	}

	if langs, _, err := f.client.Repositories.ListLanguages(ctx, owner, name); err == nil {
		repo.Languages = langs
	} else {
		log.Printf("[github] languages for %s unavailable: %v", fullName, err)
	}

	if readme, _, err := f.client.Repositories.GetReadme(ctx, owner, name, nil); err == nil {
		if content, err := readme.GetContent(); err == nil {
			repo.ReadmeLength = len(content)
		}
	}

	return repo
}

func splitFullName(fullName string) (owner, name string) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", fullName
}

// classify maps API failures onto the run error taxonomy: auth problems
// are configuration errors, everything else (rate limits included) is a
// transient upstream failure worth retrying later.
func classify(err error, op string) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return common.WrapError(common.ErrCodeTransientUpstream, "GitHub rate limit exhausted: "+op, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return common.WrapError(common.ErrCodeConfiguration, "GitHub credentials rejected: "+op, err)
		}
	}

	return common.WrapError(common.ErrCodeTransientUpstream, "GitHub API call failed: "+op, err)
}
