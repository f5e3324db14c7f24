package release

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/rainxch/githubstore/pkg/ratelimit"
	"golang.org/x/oauth2"
)

// GitHubSource implements Source against the GitHub releases API. Every
// response's quota headers are fed into the rate-limit guard.
type GitHubSource struct {
	client *github.Client
	guard  *ratelimit.Guard
}

var _ Source = (*GitHubSource)(nil)

// NewGitHubSource creates a release source. token may be empty for
// unauthenticated access; a non-empty token optimistically clears any
// recorded quota exhaustion.
func NewGitHubSource(token string, timeout time.Duration, guard *ratelimit.Guard) *GitHubSource {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		if guard != nil {
			guard.OnAuthenticated()
		}
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	return &GitHubSource{
		client: github.NewClient(httpClient),
		guard:  guard,
	}
}

// LatestRelease returns the newest published release of the repository.
func (s *GitHubSource) LatestRelease(ctx context.Context, ref model.RepoRef) (*model.Release, error) {
	rel, resp, err := s.client.Repositories.GetLatestRelease(ctx, ref.Owner, ref.Name)
	if resp != nil && s.guard != nil {
		s.guard.ObserveHeaders(resp.Header)
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) {
			return nil, errors.Wrapf(errors.ErrRateLimited, "%s/%s", ref.Owner, ref.Name)
		}
		return nil, errors.Wrapf(err, "failed to fetch latest release for %s/%s", ref.Owner, ref.Name)
	}
	return convertRelease(rel), nil
}

func convertRelease(rel *github.RepositoryRelease) *model.Release {
	out := &model.Release{
		Tag:   rel.GetTagName(),
		Name:  rel.GetName(),
		Notes: rel.GetBody(),
	}
	if ts := rel.GetPublishedAt(); !ts.IsZero() {
		out.PublishedAt = ts.Time
	}
	for _, a := range rel.Assets {
		out.Assets = append(out.Assets, model.Asset{
			Name:        a.GetName(),
			URL:         a.GetBrowserDownloadURL(),
			Size:        int64(a.GetSize()),
			ContentType: a.GetContentType(),
		})
	}
	return out
}
