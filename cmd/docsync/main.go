// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/docsync"
	"github.com/poiesic/docsync/config"
	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/lifecycle"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docsync",
		Usage: "Keep a vector store in sync with document sources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"DOCSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (overrides metrics.addr)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Sync every configured source once",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Only sync the named source (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Print chunk progress to stderr",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Sync, then re-sync sources whenever they change",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Only watch the named source (repeatable)",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show the last ingestion of every configured source",
				Action: statusCommand,
			},
		},
	}
}

// runtime bundles what every command sets up.
type runtime struct {
	cfg        *config.Config
	manager    *lifecycle.Manager
	engine     *docsync.Engine
	connectors []connector.Connector
	metrics    *http.Server
}

func setup(c *cli.Context, opts ...docsync.Option) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}

	connectors, err := docsync.Connectors(cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	connectors = filterSources(connectors, c.StringSlice("source"))
	if len(connectors) == 0 {
		return nil, errors.New("no sources configured")
	}

	manager := lifecycle.NewManager(
		lifecycle.WithForceExitDelay(cfg.Shutdown.ForceExitDelay),
		lifecycle.WithCleanupTimeout(cfg.Shutdown.CleanupTimeout),
	)
	manager.HandleSignals()

	opts = append(opts, docsync.WithManager(manager))
	engine, err := docsync.Open(manager.Context(), cfg, opts...)
	if err != nil {
		manager.StopSignals()
		return nil, err
	}

	rt := &runtime{cfg: cfg, manager: manager, engine: engine, connectors: connectors}
	if cfg.Metrics.Addr != "" {
		rt.metrics = serveMetrics(cfg.Metrics.Addr)
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rt.metrics.Shutdown(ctx); err != nil {
			slog.Warn("metrics server did not stop cleanly", "err", err)
		}
	}
	rt.manager.Cleanup()
	if err := rt.engine.Close(); err != nil {
		slog.Error("error closing engine", "err", err)
	}
	rt.manager.StopSignals()
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}

func filterSources(connectors []connector.Connector, names []string) []connector.Connector {
	if len(names) == 0 {
		return connectors
	}
	out := make([]connector.Connector, 0, len(names))
	for _, c := range connectors {
		if slices.Contains(names, c.Source().Name) {
			out = append(out, c)
		}
	}
	return out
}

func syncCommand(c *cli.Context) error {
	var opts []docsync.Option
	if c.Bool("progress") {
		opts = append(opts, docsync.WithProgress(c.App.ErrWriter))
	}
	rt, err := setup(c, opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	reports, err := rt.engine.SyncAll(rt.manager.Context(), rt.connectors)
	printReports(c.App.Writer, reports)
	return err
}

func watchCommand(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.close()

	errs := make(chan error, len(rt.connectors))
	for _, conn := range rt.connectors {
		rt.manager.Go("watch-"+conn.Source().Name, func(ctx context.Context) error {
			err := rt.engine.Watch(ctx, conn)
			errs <- err
			return err
		})
	}

	var first error
	for range rt.connectors {
		if err := <-errs; err != nil && first == nil {
			first = err
			rt.manager.Shutdown()
		}
	}
	return first
}

func statusCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	connectors, err := docsync.Connectors(cfg, slog.Default())
	if err != nil {
		return err
	}
	engine, err := docsync.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tDOCUMENTS\tDELETED\tLAST SUCCESS\tERROR")
	for _, conn := range connectors {
		st, err := engine.Status(c.Context, conn.Source())
		if err != nil {
			return err
		}
		status, lastSuccess, message := "never", "-", ""
		if h := st.History; h != nil {
			status = string(h.Status)
			if !h.LastSuccessfulIngestion.IsZero() {
				lastSuccess = h.LastSuccessfulIngestion.Local().Format(time.RFC3339)
			}
			message = h.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			st.Source, status, st.ActiveDocuments, st.DeletedDocuments, lastSuccess, message)
	}
	return w.Flush()
}

func printReports(out io.Writer, reports []*docsync.SyncReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tFETCHED\tNEW\tUPDATED\tDELETED\tINGESTED\tCHUNKS\tFAILED\tDURATION")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Source, r.Status, r.Fetched, r.New, r.Updated, r.Deleted, r.Ingested,
			r.ChunksSucceeded, r.ChunksFailed+r.ChunkingFailed, r.Duration.Round(time.Millisecond))
	}
	w.Flush()
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
