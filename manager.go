// Package metrofuse fuses a static subway schedule with realtime
// arrival feeds. The static dump seeds a station graph for routing;
// the realtime feeds keep a short-lived arrivals cache fresh.
package metrofuse

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/subwaylab/metrofuse/downloader"
	"github.com/subwaylab/metrofuse/graph"
	"github.com/subwaylab/metrofuse/parse"
	"github.com/subwaylab/metrofuse/storage"
)

const (
	DefaultStaticTimeout = 60 * time.Second
	DefaultStaticMaxSize = 800 << 20 // 800 MB
)

// Manager loads static schedules and compiles the station graph on
// top of the given storage.
type Manager struct {
	StaticTimeout time.Duration
	StaticMaxSize int
	Downloader    downloader.Downloader

	// Overrides for graph compilation, in seconds. Zero keeps the
	// compiler's defaults.
	DefaultEdge        int
	TransferPenaltyMin int
	TransferPenaltyMax int

	storage storage.Storage
}

func NewManager(s storage.Storage) *Manager {
	return &Manager{
		StaticTimeout: DefaultStaticTimeout,
		StaticMaxSize: DefaultStaticMaxSize,
		Downloader:    downloader.NewMemoryDownloader(),
		storage:       s,
	}
}

// LoadStaticFromURL downloads a zipped static dump and replaces the
// stored dataset with it.
func (m *Manager) LoadStaticFromURL(ctx context.Context, url string, headers map[string]string) (*parse.Static, error) {
	buf, err := m.Downloader.Get(ctx, url, headers, downloader.GetOptions{
		Timeout: m.StaticTimeout,
		MaxSize: m.StaticMaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading static: %w", err)
	}

	return m.loadStatic(buf)
}

// LoadStaticFromPath loads a static dump from a local zip file or a
// directory of .txt files.
func (m *Manager) LoadStaticFromPath(path string) (*parse.Static, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if info.IsDir() {
		writer, err := m.storage.Writer()
		if err != nil {
			return nil, fmt.Errorf("getting writer: %w", err)
		}
		static, err := parse.ParseStaticDir(writer, path)
		if err != nil {
			return nil, fmt.Errorf("parsing static: %w", err)
		}
		return static, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m.loadStatic(buf)
}

func (m *Manager) loadStatic(buf []byte) (*parse.Static, error) {
	writer, err := m.storage.Writer()
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	static, err := parse.ParseStatic(writer, buf)
	if err != nil {
		return nil, fmt.Errorf("parsing static: %w", err)
	}

	return static, nil
}

// CompileGraph rebuilds the station graph from the stored dataset.
func (m *Manager) CompileGraph(ctx context.Context) (graph.Stats, error) {
	compiler := graph.NewCompiler(m.storage)
	compiler.DefaultEdge = m.DefaultEdge
	compiler.PenaltyMin = m.TransferPenaltyMin
	compiler.PenaltyMax = m.TransferPenaltyMax

	return compiler.Compile(ctx)
}

// Headsigns builds a trip headsign lookup from the stored schedule,
// for stamping predictions. Trips without a headsign, and trips the
// schedule doesn't know, fall back to "<route> Train".
func (m *Manager) Headsigns() (func(tripID, routeID string) string, error) {
	reader, err := m.storage.Reader()
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	trips, err := reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}

	headsigns := make(map[string]string, len(trips))
	for _, trip := range trips {
		if trip.Headsign != "" {
			headsigns[trip.ID] = trip.Headsign
		}
	}

	return func(tripID, routeID string) string {
		if headsign, found := headsigns[tripID]; found {
			return headsign
		}
		return fmt.Sprintf("%s Train", routeID)
	}, nil
}
