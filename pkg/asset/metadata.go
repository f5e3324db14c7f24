// Package asset reads package metadata out of downloaded release assets.
// Installable assets are archives carrying a manifest.json at their root;
// the manifest names the package and its version code before any install
// session is opened.
package asset

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
	"github.com/rainxch/githubstore/pkg/errors"
)

// manifestFile is the well-known metadata entry inside an installable asset.
const manifestFile = "manifest.json"

// Metadata describes the package contained in an asset archive.
type Metadata struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name,omitempty"`
	VersionName string `json:"version_name"`
	VersionCode int64  `json:"version_code"`
	OS          string `json:"os,omitempty"`
	Arch        string `json:"arch,omitempty"`
}

// ReadMetadata opens the asset archive at path and decodes its manifest.
// A file that is not a readable archive is an invalid asset, not an
// archive missing its manifest.
func ReadMetadata(ctx context.Context, path string) (*Metadata, error) {
	raw, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileNotFound, "asset %s", path)
	}
	format, _, err := archives.Identify(ctx, filepath.Base(path), raw)
	_ = raw.Close()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrAssetInvalid, "asset %s: %v", path, err)
	}
	if _, ok := format.(archives.Extractor); !ok {
		return nil, errors.Wrapf(errors.ErrAssetInvalid, "asset %s is not an archive", path)
	}

	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAssetInvalid, err.Error())
	}

	f, err := fsys.Open(manifestFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(errors.ErrNoManifest, "asset %s", path)
		}
		// The name looked like an archive but its contents do not parse.
		return nil, errors.Wrapf(errors.ErrAssetInvalid, "asset %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	meta := &Metadata{}
	if err := json.NewDecoder(f).Decode(meta); err != nil {
		return nil, errors.Wrap(errors.ErrAssetInvalid, err.Error())
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

// Validate checks the fields an install cannot proceed without.
func (m *Metadata) Validate() error {
	if m.PackageName == "" {
		return errors.Wrap(errors.ErrAssetInvalid, "manifest has no package_name")
	}
	if m.VersionCode < 0 {
		return errors.Wrap(errors.ErrAssetInvalid, "manifest version_code is negative")
	}
	return nil
}
