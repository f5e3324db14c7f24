package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rainxch/githubstore/pkg/model"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var updatesOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked apps",
		Long:  "List the apps the store tracks, with their installed and latest versions.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, updatesOnly)
		},
	}

	cmd.Flags().BoolVarP(&updatesOnly, "updates", "u", false, "only apps with an available update")

	return cmd
}

func runList(cmd *cobra.Command, updatesOnly bool) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	var apps []*model.TrackedApp
	if updatesOnly {
		apps, err = rt.store.ListWithUpdates(cmd.Context())
	} else {
		apps, err = rt.store.List(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("failed to list apps: %w", err)
	}
	if len(apps) == 0 {
		fmt.Println("No apps tracked.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tREPO\tINSTALLED\tLATEST\tFLAGS")
	for _, app := range apps {
		repo := ""
		if app.RepoOwner != "" {
			repo = app.RepoOwner + "/" + app.RepoName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			app.PackageName, repo, displayVersion(app), app.LatestVersion, flags(app))
	}
	return w.Flush()
}

func displayVersion(app *model.TrackedApp) string {
	if app.InstalledVersionName != "" {
		return app.InstalledVersionName
	}
	return app.InstalledVersion
}

func flags(app *model.TrackedApp) string {
	out := ""
	if app.IsUpdateAvailable {
		out += "U"
	}
	if app.IsPendingInstall {
		out += "P"
	}
	if app.AutoUpdateEnabled {
		out += "A"
	}
	if out == "" {
		out = "-"
	}
	return out
}
