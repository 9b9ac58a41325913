package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fjordsim/fjord/bridge"
	"github.com/fjordsim/fjord/engine"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fjord",
		Short: "Drive simulations hosted in the fjord solver engine",
		Long: `fjord boots the embedded solver engine described by a project's
fjord.yaml, sets up simulations from configuration scripts, and drives
them step by step.

Diagnostics are controlled by FJORD_DEBUG (all, host, none).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch os.Getenv(bridge.EnvDebug) {
			case "all", "host":
				if l, err := zap.NewDevelopment(); err == nil {
					bridge.SetLogger(l)
					engine.SetLogger(l)
				}
			}
		},
	}

	rootCmd.PersistentFlags().String("project", ".", "Project directory containing fjord.yaml")
	rootCmd.PersistentFlags().String("cache-path", "", "Compilation cache directory (overrides FJORD_CACHE_PATH)")

	rootCmd.AddCommand(
		newRunCmd(),
		newWatchCmd(),
		newInfoCmd(),
		newEvalCmd(),
		newHistoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openBridge initializes a bridge against the project named by the
// persistent flags. The caller owns Finalize.
func openBridge(cmd *cobra.Command) (*bridge.Bridge, string, error) {
	project, _ := cmd.Flags().GetString("project")
	abs, err := filepath.Abs(project)
	if err != nil {
		return nil, "", err
	}

	var opts []bridge.Option
	if cache, _ := cmd.Flags().GetString("cache-path"); cache != "" {
		opts = append(opts, bridge.WithCachePath(cache))
	}

	b := bridge.New(opts...)
	if err := b.Init(cmd.Context(), abs); err != nil {
		return nil, "", err
	}
	return b, abs, nil
}

// journalPath is where a project's run journal lives.
func journalPath(project string) string {
	return filepath.Join(project, ".fjord", "journal.db")
}
