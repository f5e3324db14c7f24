package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall PACKAGE",
		Short: "Uninstall a tracked app",
		Long:  "Ask the host to remove the package and wait for the result.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUninstall,
	}

	return cmd
}

func runUninstall(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.orch.Uninstall(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to uninstall %s: %w", args[0], err)
	}
	if !result.Success {
		return fmt.Errorf("uninstall of %s failed: %s", args[0], result.Message)
	}
	fmt.Printf("Uninstalled %s\n", args[0])
	return nil
}
