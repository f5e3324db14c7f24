//go:generate mockgen -destination=./mocks/release.go -package=mocks . Source

// Package release checks tracked repositories for new releases and
// decides whether an update is available for a tracked app.
package release

import (
	"context"

	"github.com/rainxch/githubstore/pkg/model"
)

// Source fetches release information for a repository. The browsing API
// proper is out of scope; this is the single query the update path needs.
type Source interface {
	LatestRelease(ctx context.Context, ref model.RepoRef) (*model.Release, error)
}
