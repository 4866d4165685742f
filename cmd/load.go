package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse/config"
	"github.com/subwaylab/metrofuse/parse"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Loads a static schedule into the store",
	RunE:  load,
}

var (
	loadPath string
	loadURL  string
)

func init() {
	loadCmd.Flags().StringVarP(&loadPath, "path", "p", "", "Local zip file or directory of .txt files")
	loadCmd.Flags().StringVarP(&loadURL, "url", "u", "", "Static schedule URL")
	rootCmd.AddCommand(loadCmd)
}

func load(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if loadPath == "" {
		loadPath = cfg.StaticPath
	}
	if loadURL == "" {
		loadURL = cfg.StaticURL
	}

	s, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	m, err := buildManager(cfg, s)
	if err != nil {
		return err
	}

	var static *parse.Static
	switch {
	case loadPath != "":
		static, err = m.LoadStaticFromPath(loadPath)
	case loadURL != "":
		static, err = m.LoadStaticFromURL(cmd.Context(), loadURL, cfg.FeedHeaders())
	default:
		return fmt.Errorf("a path or URL is required")
	}
	if err != nil {
		return err
	}

	fmt.Printf(
		"loaded %d stops, %d routes, %d trips, %d stop times, %d transfers (%s)\n",
		static.Stops, static.Routes, static.Trips, static.StopTimes, static.Transfers, static.Timezone)
	return nil
}
