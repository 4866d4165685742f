package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse/config"
	"github.com/subwaylab/metrofuse/router"
)

var routeCmd = &cobra.Command{
	Use:   "route <from> <to>",
	Short: "Finds the fastest itinerary between two stops",
	Args:  cobra.ExactArgs(2),
	RunE:  route,
}

var maxTransfers int

func init() {
	routeCmd.Flags().IntVarP(&maxTransfers, "max-transfers", "t", -1, "Transfer budget (-1 uses the configured default)")
	rootCmd.AddCommand(routeCmd)
}

func route(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	s, err := buildStorage(cfg)
	if err != nil {
		return err
	}
	c, err := buildCache(cfg)
	if err != nil {
		return err
	}

	r := router.New(s, c)
	r.MaxTransfers = cfg.MaxTransfers
	if maxTransfers >= 0 {
		r.MaxTransfers = maxTransfers
	}

	itinerary, err := r.Route(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	for _, leg := range itinerary.Legs {
		marker := " "
		if leg.IsTransferLeg {
			marker = "*"
		}
		fmt.Printf(
			"%s %-4s %s -> %s  board %ds, run %ds\n",
			marker, leg.RouteID, leg.FromStopID, leg.ToStopID, leg.BoardIn, leg.Run)
	}
	fmt.Printf("total %ds, %d transfers\n", itinerary.TotalETA, itinerary.Transfers)
	return nil
}
