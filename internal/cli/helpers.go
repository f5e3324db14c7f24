// Package cli implements the ghstore commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rainxch/githubstore/pkg/config"
	"github.com/rainxch/githubstore/pkg/download"
	"github.com/rainxch/githubstore/pkg/fsutil"
	"github.com/rainxch/githubstore/pkg/hostpkg"
	"github.com/rainxch/githubstore/pkg/install"
	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/notify"
	"github.com/rainxch/githubstore/pkg/orchestrator"
	"github.com/rainxch/githubstore/pkg/ratelimit"
	"github.com/rainxch/githubstore/pkg/reconcile"
	"github.com/rainxch/githubstore/pkg/release"
	"github.com/rainxch/githubstore/pkg/scheduler"
	"github.com/rainxch/githubstore/pkg/store"
	"github.com/sirupsen/logrus"
)

// These variables are set by the main package.
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
)

// releaseCacheTTL is how long a fetched release is served from the cache
// table before the API is asked again.
const releaseCacheTTL = 15 * time.Minute

func loadConfig() (*config.Config, error) {
	path := ""
	if ConfigPath != nil {
		path = *ConfigPath
	}
	if path == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
		path = defaultPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	return cfg, nil
}

// runtime holds the wired application: store, host facility, correlation
// protocol, release source and the flows on top of them. Commands build
// one, use it, and close it.
type runtime struct {
	cfg   *config.Config
	store *store.Store
	host  *hostpkg.DirManager
	guard *ratelimit.Guard
	job   *scheduler.UpdateJob
	orch  *orchestrator.Orchestrator

	receiverCancel context.CancelFunc
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	noColor := NoColor != nil && *NoColor
	logger.InitLogger(cfg.Settings.LogLevel, noColor)

	for _, dir := range []string{cfg.Settings.StateDir, cfg.Settings.RegistryDir, cfg.Settings.DownloadDir} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	st, err := store.Open(cfg.Settings.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker store: %w", err)
	}
	host, err := hostpkg.NewDirManager(cfg.Settings.RegistryDir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open package registry: %w", err)
	}

	guard := ratelimit.NewGuard()
	source := release.NewCachedSource(
		release.NewGitHubSource(cfg.Settings.GitHubToken, cfg.Settings.HTTPTimeout, guard),
		st, releaseCacheTTL)
	downloads := download.NewManager(cfg.Settings.DownloadDir, cfg.Settings.HTTPTimeout, userAgent())

	correlator := install.NewCorrelator()
	installer := install.NewService(host, correlator, install.Options{})
	receiver := install.NewReceiver(correlator, host, st)

	recvCtx, recvCancel := context.WithCancel(ctx)
	go receiver.Run(recvCtx)
	if err := host.StartWatcher(recvCtx); err != nil {
		logger.Warn("registry watcher unavailable", logrus.Fields{"error": err})
	}

	engine := reconcile.New(st, host)
	job := scheduler.NewUpdateJob(st, engine, source, downloads, installer, host, guard,
		notify.NewLogNotifier(), cfg.Settings)
	orch := orchestrator.New(st, source, downloads, installer, job, cfg.Settings.Platform)

	return &runtime{
		cfg:            cfg,
		store:          st,
		host:           host,
		guard:          guard,
		job:            job,
		orch:           orch,
		receiverCancel: recvCancel,
	}, nil
}

func (r *runtime) Close() {
	r.receiverCancel()
	r.host.StopWatcher()
	if err := r.store.Close(); err != nil {
		logger.Warn("failed to close store", logrus.Fields{"error": err})
	}
}

func userAgent() string {
	return "ghstore/" + Version
}

// progressHooks prints flow events for interactive commands.
func progressHooks() orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		if e.Percent >= 0 {
			fmt.Printf("%s: %d%% %s\n", e.Stage, e.Percent, e.Message)
		} else {
			fmt.Printf("%s: %s\n", e.Stage, e.Message)
		}
	}}
}
