package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAutoUpdateCmd creates the autoupdate command.
func NewAutoUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoupdate PACKAGE {on|off}",
		Short: "Toggle unattended updates for an app",
		Long: `Enable or disable unattended updates for one tracked app. An
enabled app is downloaded and installed silently whenever the scheduled
check finds a newer release.`,
		Args: cobra.ExactArgs(2),
		RunE: runAutoUpdate,
	}

	return cmd
}

func runAutoUpdate(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[1] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("invalid state %q, expected on or off", args[1])
	}

	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.orch.SetAutoUpdate(cmd.Context(), args[0], enabled); err != nil {
		return fmt.Errorf("failed to update %s: %w", args[0], err)
	}
	fmt.Printf("Auto-update %s for %s\n", args[1], args[0])
	return nil
}
