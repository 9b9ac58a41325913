package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fjordsim/fjord/journal"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded simulation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			abs, err := filepath.Abs(project)
			if err != nil {
				return err
			}

			path := journalPath(abs)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Println("no runs recorded")
				return nil
			}

			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTEPS\tFINAL TIME\tSTATUS\tDESCRIPTION")
			for _, r := range runs {
				status := "finished"
				if !r.Completed {
					status = "stopped"
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%.6f\t%s\t%s\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Steps, r.FinalTime, status, r.Description)
			}
			return w.Flush()
		},
	}
}
