package cli

import (
	"fmt"
	"time"

	"github.com/rainxch/githubstore/pkg/scheduler"
	"github.com/spf13/cobra"
)

// NewDaemonCmd creates the daemon command.
func NewDaemonCmd() *cobra.Command {
	var (
		interval  time.Duration
		immediate bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background update scheduler",
		Long: `Arm the periodic update schedule and keep running until
interrupted. Each run reconciles the tracker against the host, checks all
tracked repositories for new releases and auto-updates the apps that
opted in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, interval, immediate)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "override the configured check interval")
	cmd.Flags().BoolVar(&immediate, "immediate", true, "run one check right away")

	return cmd
}

func runDaemon(cmd *cobra.Command, interval time.Duration, immediate bool) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if interval == 0 {
		interval = rt.cfg.Settings.Update.Interval
	}

	sched := scheduler.NewTimerScheduler(rt.job)
	sched.SchedulePeriodic(interval, immediate)
	defer sched.Cancel()

	fmt.Printf("Update scheduler running every %s. Press Ctrl-C to stop.\n", interval)
	<-cmd.Context().Done()
	return nil
}
