package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <config>",
		Short: "Step through a simulation interactively",
		Long: `watch sets up a simulation and opens a terminal UI that advances
it one step at a time, or continuously, while displaying the mesh shape
and the evolving solution time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newWatchModel(cmd, args[0]), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}
