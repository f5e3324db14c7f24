package cli

import (
	"fmt"
	"strings"

	"github.com/rainxch/githubstore/pkg/model"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "install [OWNER/REPO]",
		Short: "Install an app from a GitHub release",
		Long: `Install the latest release of a GitHub repository through the
silent install path. The matching asset for the configured platform is
downloaded, inspected and streamed into an install session. With --file a
local asset archive is installed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, args, fromFile)
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "install a local asset archive instead of a repository release")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string, fromFile string) error {
	if fromFile == "" && len(args) == 0 {
		return fmt.Errorf("either OWNER/REPO or --file is required")
	}

	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if fromFile != "" {
		app, err := rt.orch.InstallFile(cmd.Context(), fromFile, progressHooks())
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", fromFile, err)
		}
		fmt.Printf("Installed %s\n", app.PackageName)
		return nil
	}

	ref, err := parseRepoRef(args[0])
	if err != nil {
		return err
	}
	app, err := rt.orch.InstallFromRelease(cmd.Context(), ref, progressHooks())
	if err != nil {
		return fmt.Errorf("failed to install %s/%s: %w", ref.Owner, ref.Name, err)
	}
	fmt.Printf("Installed %s %s\n", app.PackageName, app.LatestVersion)
	return nil
}

func parseRepoRef(arg string) (model.RepoRef, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.RepoRef{}, fmt.Errorf("invalid repository %q, expected OWNER/REPO", arg)
	}
	return model.RepoRef{Owner: parts[0], Name: parts[1]}, nil
}
