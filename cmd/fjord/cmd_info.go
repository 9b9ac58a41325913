package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fjordsim/fjord/bridge"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show library and engine package versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			extended, _ := cmd.Flags().GetBool("extended")

			fmt.Printf("fjord %s\n", bridge.Version())

			b, _, err := openBridge(cmd)
			if err != nil {
				return err
			}
			defer b.Finalize(ctx)

			pkgs, err := b.VersionPackages()
			if extended {
				pkgs, err = b.VersionPackagesExtended()
			}
			if err != nil {
				return err
			}
			fmt.Printf("\nengine packages:\n%s\n", pkgs)
			return nil
		},
	}

	cmd.Flags().Bool("extended", false, "Include transitive engine dependencies")
	return cmd
}

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <code>",
		Short: "Evaluate code inside the engine (development only)",
		Long: `eval hands a code string to the engine's script evaluator.

The code runs with full access to the engine's internal state and can
corrupt live simulations; this command exists for debugging engine
packages, not for production use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			b, _, err := openBridge(cmd)
			if err != nil {
				return err
			}
			defer b.Finalize(ctx)

			return b.Eval(ctx, args[0])
		},
	}
}
