package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/subwaylab/metrofuse/api"
	"github.com/subwaylab/metrofuse/config"
	"github.com/subwaylab/metrofuse/poller"
	"github.com/subwaylab/metrofuse/router"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the poller and the HTTP API",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildStorage(cfg)
	if err != nil {
		return err
	}
	c, err := buildCache(cfg)
	if err != nil {
		return err
	}

	m, err := buildManager(cfg, s)
	if err != nil {
		return err
	}

	// A fresh store gets the schedule and graph on boot. A store that
	// already has a graph serves it as is.
	switch {
	case cfg.StaticPath != "":
		if _, err := m.LoadStaticFromPath(cfg.StaticPath); err != nil {
			return err
		}
	case cfg.StaticURL != "":
		if _, err := m.LoadStaticFromURL(ctx, cfg.StaticURL, cfg.FeedHeaders()); err != nil {
			return err
		}
	}
	if cfg.StaticPath != "" || cfg.StaticURL != "" {
		stats, err := m.CompileGraph(ctx)
		if err != nil {
			return err
		}
		log.Printf("compiled %d graph edges", stats.TotalEdges)
	}

	r := router.New(s, c)
	r.MaxTransfers = cfg.MaxTransfers

	if len(cfg.FeedURLs) > 0 {
		feeds := make([]poller.FeedSpec, 0, len(cfg.FeedURLs))
		for _, url := range cfg.FeedURLs {
			feeds = append(feeds, poller.FeedSpec{URL: url, Headers: cfg.FeedHeaders()})
		}

		p := poller.New(feeds, c, m.Downloader)
		p.Interval = cfg.PollInterval
		p.FetchTimeout = cfg.FetchTimeout
		if headsign, err := m.Headsigns(); err == nil {
			p.HeadsignFunc = headsign
		}

		go func() {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("poller stopped: %v", err)
			}
		}()
	} else {
		log.Printf("no feeds configured, serving static data only")
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.New(s, c, r).Handler(),
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
