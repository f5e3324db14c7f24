package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/rainxch/githubstore/pkg/errors"
	"github.com/rainxch/githubstore/pkg/fsutil"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	// progressStep is the minimum percent advance between two progress
	// emissions. A tunable, not a correctness requirement.
	progressStep = 5

	// copyChunkSize is the read buffer for streaming the response body.
	copyChunkSize = 64 * 1024

	// progressBuffer bounds how many emissions a slow consumer can lag
	// behind before intermediate ticks are dropped.
	progressBuffer = 16
)

// ManagerImpl is an HTTP download manager with progress streaming, optional
// checksum verification, reuse of completed downloads and per-file
// cancellation.
type ManagerImpl struct {
	client    *http.Client
	userAgent string
	dir       string

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

var _ Manager = (*ManagerImpl)(nil)

// NewManager creates a download manager writing into dir.
func NewManager(dir string, timeout time.Duration, userAgent string) *ManagerImpl {
	if userAgent == "" {
		userAgent = "githubstore/1.0"
	}
	return &ManagerImpl{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		dir:       dir,
		inflight:  make(map[string]context.CancelFunc),
	}
}

// Download fetches url into the cache directory, emitting progress. The
// transfer runs on its own goroutine; the returned channel is closed after
// the terminal emission.
func (m *ManagerImpl) Download(ctx context.Context, rawURL string, suggestedName string) <-chan model.DownloadProgress {
	out := make(chan model.DownloadProgress, progressBuffer)

	fileName := selectFilename(rawURL, suggestedName)
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if prev, ok := m.inflight[fileName]; ok {
		prev() // a newer request supersedes the old transfer
	}
	m.inflight[fileName] = cancel
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.inflight, fileName)
			m.mu.Unlock()
			cancel()
		}()

		path, err := m.fetch(ctx, rawURL, fileName, out)
		if err != nil {
			logger.Debug("download failed", logrus.Fields{"file": fileName, "error": err})
			out <- model.DownloadProgress{Err: err.Error()}
			return
		}
		out <- model.DownloadProgress{Percent: 100, Done: true, Path: path}
	}()

	return out
}

// DownloadedFilePath returns the path of a completed download still on disk.
func (m *ManagerImpl) DownloadedFilePath(fileName string) (string, bool) {
	absPath := filepath.Join(m.dir, fileName)
	if fsutil.Exists(absPath) {
		return absPath, true
	}
	return "", false
}

// Cancel stops an in-flight transfer for fileName and optionally removes
// the file. Partial transfers never leave a file behind; removeFile also
// deletes an already completed download.
func (m *ManagerImpl) Cancel(fileName string, removeFile bool) bool {
	m.mu.Lock()
	if cancel, ok := m.inflight[fileName]; ok {
		cancel()
	}
	m.mu.Unlock()

	if !removeFile {
		return false
	}
	absPath := filepath.Join(m.dir, fileName)
	if err := os.Remove(absPath); err != nil {
		return false
	}
	return true
}

func (m *ManagerImpl) fetch(ctx context.Context, rawURL, fileName string, out chan<- model.DownloadProgress) (string, error) {
	if m.dir == "" || !filepath.IsAbs(m.dir) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrInvalidPath, "download dir must be absolute: %s", m.dir)
	}
	if err := os.MkdirAll(m.dir, fsutil.DirModeSecure); err != nil {
		return "", pkgerrors.Wrap(err, "could not create download dir")
	}

	absPath := filepath.Join(m.dir, fileName)
	if st, err := os.Stat(absPath); err == nil && st.Size() > 0 {
		// Completed earlier; report it as done without re-transferring.
		emitProgress(out, model.DownloadProgress{Percent: 100, BytesTotal: st.Size(), BytesDone: st.Size()})
		return absPath, nil
	}

	resp, err := m.doRequest(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	tmpPath, err := m.writeBodyToTemp(ctx, resp, absPath, out)
	if err != nil {
		return "", err
	}
	if err := finalizeFile(tmpPath, absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func (m *ManagerImpl) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "download failed")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, pkgerrors.Wrapf(pkgerrors.ErrDownloadFailed, "unexpected status code: %d", resp.StatusCode)
	}
	return resp, nil
}

func (m *ManagerImpl) writeBodyToTemp(ctx context.Context, resp *http.Response, absPath string, out chan<- model.DownloadProgress) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(absPath), "dl-*.tmp")
	if err != nil {
		return "", pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	total := resp.ContentLength
	var written int64
	lastEmitted := -progressStep

	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return "", pkgerrors.Wrap(err, "download cancelled")
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				_ = tmp.Close()
				_ = os.Remove(tmpPath)
				return "", pkgerrors.Wrap(err, "could not write file")
			}
			written += int64(n)
			if total > 0 {
				percent := int(written * 100 / total)
				if percent >= lastEmitted+progressStep {
					emitProgress(out, model.DownloadProgress{Percent: percent, BytesTotal: total, BytesDone: written})
					lastEmitted = percent
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return "", pkgerrors.Wrap(readErr, "could not read response")
		}
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", pkgerrors.Wrap(err, "could not sync file")
	}
	if err := tmp.Close(); err != nil {
		return "", pkgerrors.Wrap(err, "could not close file")
	}
	return tmpPath, nil
}

// emitProgress delivers a non-terminal tick without ever blocking the
// writer; a full buffer drops the tick.
func emitProgress(out chan<- model.DownloadProgress, p model.DownloadProgress) {
	select {
	case out <- p:
	default:
	}
}

func finalizeFile(tmpPath, absPath string) error {
	if err := fsutil.Move(tmpPath, absPath); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(absPath, fsutil.FileModeSecure); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	return nil
}

// VerifySHA256 checks a finished download against an expected checksum.
func VerifySHA256(path string, wantHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, pkgerrors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, pkgerrors.Wrap(err, "hashing")
	}
	got := hex.EncodeToString(h.Sum(nil))
	return got == strings.ToLower(strings.TrimSpace(wantHex)), nil
}

func selectFilename(rawURL, suggestedName string) string {
	if suggestedName != "" {
		return filepath.Base(suggestedName)
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := filepath.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	h := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(h[:])
}
