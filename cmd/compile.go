package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse/config"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Rebuilds the station graph from the stored schedule",
	RunE:  compile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func compile(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	s, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	m, err := buildManager(cfg, s)
	if err != nil {
		return err
	}

	stats, err := m.CompileGraph(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf(
		"compiled %d edges: %d consecutive, %d transfers, %d platform transfers\n",
		stats.TotalEdges, stats.ConsecutiveEdges, stats.TransferEdges, stats.PlatformEdges)
	return nil
}
