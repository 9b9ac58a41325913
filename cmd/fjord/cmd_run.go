package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fjordsim/fjord/journal"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run a simulation to completion",
		Long: `run sets up a simulation from the given configuration script
(resolved relative to the project directory inside the engine) and
advances it until the engine reports it finished.

Each run is appended to the project's journal unless --no-journal is
given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			description, _ := cmd.Flags().GetString("description")
			noJournal, _ := cmd.Flags().GetBool("no-journal")
			maxSteps, _ := cmd.Flags().GetInt("max-steps")

			b, project, err := openBridge(cmd)
			if err != nil {
				return err
			}
			defer b.Finalize(ctx)

			tracker := journal.NewTracker()
			b.Observe(tracker)

			h, err := b.CreateSimulation(ctx, args[0])
			if err != nil {
				return err
			}

			interactive := term.IsTerminal(int(os.Stdout.Fd()))
			steps := 0
			completed := false
			for {
				done, err := b.IsFinished(ctx, h)
				if err != nil {
					return err
				}
				if done {
					completed = true
					break
				}
				if maxSteps > 0 && steps >= maxSteps {
					break
				}
				if err := b.Step(ctx, h); err != nil {
					return err
				}
				steps++
				if interactive && steps%10 == 0 {
					tm, err := b.Time(ctx, h)
					if err != nil {
						return err
					}
					fmt.Printf("\rstep %6d  t = %.6f", steps, tm)
				}
			}
			if interactive && steps >= 10 {
				fmt.Println()
			}

			finalTime, err := b.Time(ctx, h)
			if err != nil {
				return err
			}

			startedAt, _ := tracker.StartedAt(h)
			if err := b.ReleaseSimulation(ctx, h); err != nil {
				return err
			}

			if !noJournal {
				if description == "" {
					description = args[0]
				}
				entry := journal.Run{
					Description: description,
					StartedAt:   startedAt,
					FinishedAt:  time.Now(),
					Steps:       steps,
					FinalTime:   finalTime,
					Completed:   completed,
				}
				path := journalPath(project)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				j, err := journal.Open(path)
				if err != nil {
					return err
				}
				defer j.Close()
				if _, err := j.Record(entry); err != nil {
					return err
				}
			}

			status := "finished"
			if !completed {
				status = "stopped"
			}
			fmt.Printf("%s after %d steps, t = %.6f\n", status, steps, finalTime)
			return nil
		},
	}

	cmd.Flags().String("description", "", "Journal description for this run")
	cmd.Flags().Bool("no-journal", false, "Do not record this run in the journal")
	cmd.Flags().Int("max-steps", 0, "Stop after N steps (0 runs to completion)")
	return cmd
}
