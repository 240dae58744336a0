// Command mapsession drives a headless map session. It reads one JSON command
// per line from stdin and writes one JSON event per line to stdout.
//
// Commands:
//
//	{"cmd":"load"}                                          load the spreadsheet (csv mode)
//	{"cmd":"viewport","minLat":-22,"minLng":-52,"maxLat":-21,"maxLng":-51,"zoom":9}
//	{"cmd":"filter","q":"lagoa","cat":"Arqueológico","periodo":""}
//	{"cmd":"select","id":"csv-4"}
//	{"cmd":"clear"}
//	{"cmd":"state"}
//
// In viewport mode each viewport command goes through the debounced loader and
// the IPHAN WFS layer; in csv mode the whole spreadsheet is loaded once.
//
// Usage:
//
//	go run ./cmd/mapsession -mode viewport < session.jsonl
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/heritage-sites-service/internal/adapter/sheet"
	"github.com/couchcryptid/heritage-sites-service/internal/adapter/wfs"
	"github.com/couchcryptid/heritage-sites-service/internal/config"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
	"github.com/couchcryptid/heritage-sites-service/internal/view"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
)

const (
	modeViewport = "viewport"
	modeCSV      = "csv"
)

type command struct {
	Cmd string `json:"cmd"`
	ID  string `json:"id,omitempty"`

	domain.Query

	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
	Zoom   int     `json:"zoom"`
}

// emitter serializes output lines from the input loop and the loader goroutine.
type emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (e *emitter) emit(event string, fields map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]any{"event": event}
	for k, v := range fields {
		out[k] = v
	}
	_ = e.enc.Encode(out)
}

type session struct {
	mode   string
	cfg    *config.Config
	out    *emitter
	view   *view.MapView
	loader *viewport.Loader
	sheet  *sheet.Client
	logger *slog.Logger
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mapsession:", err)
		os.Exit(1)
	}
}

func run() error {
	mode := flag.String("mode", modeViewport, "data source: viewport (IPHAN WFS) or csv (spreadsheet)")
	linger := flag.Duration("linger", 0, "time to wait for pending loads after stdin closes (default: debounce + WFS timeout)")
	flag.Parse()

	if *mode != modeViewport && *mode != modeCSV {
		return fmt.Errorf("unknown mode %q", *mode)
	}

	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout stays a clean event stream.
	logger := observability.NewLoggerTo(os.Stderr, cfg)
	metrics := observability.NewMetricsForTesting()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &session{
		mode:   *mode,
		cfg:    cfg,
		out:    &emitter{enc: json.NewEncoder(os.Stdout)},
		logger: logger,
	}
	s.view = view.New(s.onSelection)

	var loaderDone <-chan struct{}
	switch s.mode {
	case modeViewport:
		client := wfs.NewClient(cfg.WFSProxyURL, cfg.WFSTypeName, cfg.WFSMaxFeatures, cfg.WFSMaxBytes, cfg.WFSTimeout, logger, metrics)
		loaderDone = s.startLoader(ctx, client, metrics)
	case modeCSV:
		s.sheet = sheet.NewClient(cfg.CSVTimeout, cfg.CSVMaxBytes, logger, metrics)
	}

	if err := s.readCommands(ctx, os.Stdin); err != nil {
		return err
	}

	if s.loader != nil {
		wait := *linger
		if wait <= 0 {
			wait = cfg.ViewportDebounce + cfg.WFSTimeout
		}
		s.drain(ctx, wait)
		stop()
		<-loaderDone
	}
	s.out.emit("state", map[string]any{"view": s.view.Snapshot()})
	return nil
}

// startLoader runs a viewport loader over source until ctx is cancelled. The
// returned channel is closed once the loader has stopped.
func (s *session) startLoader(ctx context.Context, source viewport.Source, metrics *observability.Metrics) <-chan struct{} {
	s.loader = viewport.New(source,
		viewport.WithMinZoom(s.cfg.ViewportMinZoom),
		viewport.WithDebounce(s.cfg.ViewportDebounce),
		viewport.WithLogger(s.logger),
		viewport.WithMetrics(metrics),
		viewport.WithStateHandler(s.onLoaderState),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.loader.Run(ctx); err != nil {
			s.logger.Error("viewport loader error", "error", err)
		}
	}()
	return done
}

func (s *session) readCommands(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd command
		if err := json.Unmarshal(line, &cmd); err != nil {
			s.out.emit("error", map[string]any{"error": fmt.Sprintf("invalid command: %v", err)})
			continue
		}
		if err := s.handle(ctx, cmd); err != nil {
			s.out.emit("error", map[string]any{"cmd": cmd.Cmd, "error": err.Error()})
		}
	}
	return scanner.Err()
}

func (s *session) handle(ctx context.Context, cmd command) error {
	switch cmd.Cmd {
	case "load":
		if s.mode != modeCSV {
			return errors.New("load is only available in csv mode")
		}
		points, err := s.sheet.LoadFromDelimitedSource(ctx, s.cfg.CSVURL)
		if err != nil {
			s.view.SetError(err)
			return err
		}
		s.view.SetPoints(points)
		s.emitState()
	case "viewport":
		if s.mode != modeViewport {
			return errors.New("viewport is only available in viewport mode")
		}
		v := viewport.Viewport{
			BBox: domain.BBox{MinLat: cmd.MinLat, MinLng: cmd.MinLng, MaxLat: cmd.MaxLat, MaxLng: cmd.MaxLng},
			Zoom: cmd.Zoom,
		}
		if !v.BBox.Valid() {
			return fmt.Errorf("invalid bounds %s", v.BBox)
		}
		d, err := s.loader.Notify(ctx, v)
		if err != nil {
			return err
		}
		s.out.emit("decision", map[string]any{"decision": d.String(), "key": v.Key()})
	case "filter":
		s.view.SetQuery(cmd.Query)
		s.emitState()
	case "select":
		return s.view.SelectByID(cmd.ID)
	case "clear":
		s.view.Clear()
	case "state":
		s.emitState()
	default:
		return fmt.Errorf("unknown command %q", cmd.Cmd)
	}
	return nil
}

func (s *session) onLoaderState(st viewport.State) {
	s.view.ApplyLoaderState(st)
	s.emitState()
}

func (s *session) onSelection(c view.SelectionChange) {
	if center, ok := c.Recenter(); ok {
		s.out.emit("select", map[string]any{"point": c.Point})
		s.out.emit("recenter", map[string]any{"center": center, "directions": domain.DirectionsURL(c.Point)})
		return
	}
	s.out.emit("clear", nil)
}

func (s *session) emitState() {
	snap := s.view.Snapshot()
	s.out.emit("state", map[string]any{
		"status":  snap.Status,
		"error":   snap.Error,
		"total":   snap.Total,
		"visible": len(snap.Visible),
		"facets":  snap.Facets,
		"query":   snap.Query.Values().Encode(),
	})
}

// settled reports whether the loader is idle and the view has caught up with it.
func (s *session) settled() bool {
	st := s.loader.State().Status
	return st != viewport.StatusLoading && s.view.Snapshot().Status == st
}

// drain waits until the loader has settled or wait elapses.
func (s *session) drain(ctx context.Context, wait time.Duration) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	// Let a pending debounce fire before checking status.
	settle := time.NewTimer(s.cfg.ViewportDebounce + 50*time.Millisecond)
	defer settle.Stop()
	select {
	case <-settle.C:
	case <-deadline.C:
		return
	case <-ctx.Done():
		return
	}

	for {
		if s.settled() {
			return
		}
		select {
		case <-poll.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
