//go:generate mockgen -destination=./mocks/download.go -package=mocks . Manager

package download

import (
	"context"

	"github.com/rainxch/githubstore/pkg/model"
)

// Manager defines the interface for downloading release assets to local
// storage. Downloads report byte progress on a stream, completed files can
// be looked up again later, and an in-flight transfer can be cancelled.
type Manager interface {
	// Download fetches the asset at url into the cache directory and
	// reports progress on the returned channel. The channel is closed
	// after a terminal emission (Done with the final path, or Err).
	Download(ctx context.Context, url string, suggestedName string) <-chan model.DownloadProgress

	// DownloadedFilePath returns the absolute path of a previously
	// completed download, if it is still present on disk.
	DownloadedFilePath(fileName string) (string, bool)

	// Cancel stops an in-flight download for fileName and, when removeFile
	// is set, deletes the partial or completed file. It reports whether a
	// file was deleted.
	Cancel(fileName string, removeFile bool) bool
}

// Options control the behavior of the download manager.
type Options struct {
	Dir      string // destination directory (cache). Must be absolute.
	Checksum string // optional hex-encoded SHA-256; verified when set
}
