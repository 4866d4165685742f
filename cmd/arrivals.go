package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/config"
	"github.com/subwaylab/metrofuse/model"
)

var arrivalsCmd = &cobra.Command{
	Use:   "arrivals <stop_id> [direction]",
	Short: "Lists cached arrival predictions for a station",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  arrivals,
}

func init() {
	rootCmd.AddCommand(arrivalsCmd)
}

func arrivals(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	c, err := buildCache(cfg)
	if err != nil {
		return err
	}

	stopID := model.BaseStopID(args[0])
	directions := model.Directions
	if len(args) == 2 {
		directions = []string{args[1]}
	}

	found := false
	for _, direction := range directions {
		entry, err := c.Arrivals(cmd.Context(), stopID, direction)
		if errors.Is(err, cache.ErrMiss) {
			continue
		}
		if err != nil {
			return err
		}

		found = true
		for _, p := range entry.Arrivals {
			fmt.Printf("%s %-4s %-30s %4ds\n", direction, p.RouteID, p.Headsign, p.ETA)
		}
	}

	if !found {
		return fmt.Errorf("no live arrivals for '%s'", stopID)
	}
	return nil
}
