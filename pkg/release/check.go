package release

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/model"
)

// SelectAsset picks the installable asset of a release for the target
// platform: extension first (when configured), then architecture, then OS
// as a tiebreaker. The first asset surviving the filters wins.
func SelectAsset(rel *model.Release, osName, arch, fileExtension string) (*model.Asset, error) {
	candidates := rel.Assets
	if fileExtension != "" {
		candidates = filterAssets(candidates, func(a model.Asset) bool {
			return strings.EqualFold(filepath.Ext(a.Name), fileExtension)
		})
	}
	if arch != "" {
		if narrowed := filterAssets(candidates, func(a model.Asset) bool {
			return strings.Contains(strings.ToLower(a.Name), strings.ToLower(arch))
		}); len(narrowed) > 0 {
			candidates = narrowed
		}
	}
	if osName != "" {
		if narrowed := filterAssets(candidates, func(a model.Asset) bool {
			return strings.Contains(strings.ToLower(a.Name), strings.ToLower(osName))
		}); len(narrowed) > 0 {
			candidates = narrowed
		}
	}
	if len(candidates) == 0 {
		return nil, errors.Wrapf(errors.ErrNoMatchingAsset, "release %s", rel.Tag)
	}
	return &candidates[0], nil
}

func filterAssets(assets []model.Asset, keep func(model.Asset) bool) []model.Asset {
	var out []model.Asset
	for _, a := range assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// ApplyLatest folds a fetched release into the tracked app's latest-known
// fields and recomputes update availability. It reports whether anything
// changed, so callers can skip redundant writes.
func ApplyLatest(app *model.TrackedApp, rel *model.Release, asset *model.Asset, now time.Time) bool {
	changed := app.LatestVersion != rel.Tag
	app.LastCheckedAt = now
	if !changed && app.LatestAssetURL == assetURL(asset) {
		app.IsUpdateAvailable = model.UpdateAvailable(
			app.InstalledVersion, app.InstalledVersionCode, app.LatestVersion, app.LatestVersionCode)
		return false
	}

	app.LatestVersion = rel.Tag
	app.LatestVersionName = rel.Name
	app.ReleaseNotes = rel.Notes
	if asset != nil {
		app.LatestAssetName = asset.Name
		app.LatestAssetURL = asset.URL
		app.LatestAssetSize = asset.Size
	}
	// A new tag invalidates the previously inspected version code; the
	// real code is only known once the new asset's manifest is read.
	if changed {
		app.LatestVersionCode = 0
	}
	app.IsUpdateAvailable = model.UpdateAvailable(
		app.InstalledVersion, app.InstalledVersionCode, app.LatestVersion, app.LatestVersionCode)
	return true
}

func assetURL(a *model.Asset) string {
	if a == nil {
		return ""
	}
	return a.URL
}
