package cli

import (
	"fmt"

	"github.com/rainxch/githubstore/pkg/notify"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check all tracked apps for updates now",
		Long: `Run one update pass immediately: reconcile against the host,
query each tracked repository for its latest release, and auto-update the
apps that opted in.`,
		RunE: runCheck,
	}

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.orch.CheckNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}

	fmt.Printf("Checked %d app(s)\n", summary.Checked)
	if summary.Empty() {
		fmt.Println("Everything is up to date.")
		return nil
	}
	fmt.Println(notify.SummaryLine(summary))
	for _, name := range summary.AutoUpdated {
		fmt.Printf("  updated: %s\n", name)
	}
	for _, name := range summary.UpdatesAvailable {
		fmt.Printf("  available: %s\n", name)
	}
	for _, name := range summary.AutoUpdateFailed {
		fmt.Printf("  failed: %s\n", name)
	}
	return nil
}
