// Copyright 2025 Tom Barlow
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

// Package watch implements the watch command.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	buildpkg "github.com/tombee/embctl/internal/build"
	"github.com/tombee/embctl/internal/commands/completion"
	"github.com/tombee/embctl/internal/commands/shared"
	"github.com/tombee/embctl/internal/metrics"
	watchpkg "github.com/tombee/embctl/internal/watch"
)

// NewCommand creates the watch command.
func NewCommand() *cobra.Command {
	var (
		toolchainID string
		metricsAddr string
		skipInitial bool
		exclude     []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the project when sources change",
		Long: `Watch the project's source directory and rebuild after changes settle.

Bursts of changes are coalesced (watch.debounce, default 300ms) and rebuilds
are at least watch.min_interval apart (default 2s). Changes held back by
the interval or by a running build are rebuilt once it allows. Press Ctrl+C
to stop.`,
		Example: `  embctl watch
  embctl watch --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, toolchainID, metricsAddr, skipInitial, exclude)
		},
	}
	cmd.Flags().StringVarP(&toolchainID, "toolchain", "t", "", "Registered toolchain id")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "Do not build once before watching")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Additional glob patterns to ignore")
	_ = cmd.RegisterFlagCompletionFunc("toolchain", completion.CompleteToolchainIDs)
	return cmd
}

func runWatch(cmd *cobra.Command, toolchainID, metricsAddr string, skipInitial bool, exclude []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := shared.NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	p, err := shared.LoadProject()
	if err != nil {
		return err
	}
	tc, err := app.ResolveToolchain(ctx, p, toolchainID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := shared.OutputSink(out)

	if metricsAddr == "" {
		metricsAddr = app.Config.Metrics.Addr
	}
	if metricsAddr != "" {
		stop, err := serveMetrics(ctx, metricsAddr, app.Logger)
		if err != nil {
			return err
		}
		defer stop()
		if !shared.GetJSON() {
			fmt.Fprintf(out, "Serving metrics on http://%s/metrics\n", metricsAddr)
		}
	}

	if !skipInitial {
		if _, err := app.Build.Build(ctx, p, tc, sink); err != nil {
			return err
		}
	}

	w, err := watchpkg.New(p, tc, app.Build, watchpkg.Options{
		Debounce:    app.Config.Watch.Debounce,
		MinInterval: app.Config.Watch.MinInterval,
		Exclude:     append(watchpkg.DefaultExcludePatterns(), exclude...),
		Sink:        sink,
		OnResult: func(changed []watchpkg.Event, res *buildpkg.Result) {
			report(out, changed, res)
		},
	}, app.Logger)
	if err != nil {
		return err
	}

	if !shared.GetJSON() {
		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", p.SourcePath())
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func report(w io.Writer, changed []watchpkg.Event, res *buildpkg.Result) {
	if shared.GetJSON() {
		paths := make([]string, len(changed))
		for i, ev := range changed {
			paths[i] = ev.Path
		}
		_ = shared.EmitJSON(w, struct {
			shared.JSONResponse
			Changed    []string `json:"changed"`
			ID         string   `json:"id"`
			DurationMS int64    `json:"duration_ms"`
			Error      string   `json:"error,omitempty"`
		}{shared.NewJSONResponse("watch", res.Success), paths, res.ID, res.Duration.Milliseconds(), res.Error})
		return
	}
	if shared.GetQuiet() {
		return
	}
	stamp := time.Now().Format("15:04:05")
	if res.Success {
		fmt.Fprintf(w, "%s %s\n", stamp, shared.RenderOK(fmt.Sprintf("rebuilt after %d change(s)", len(changed))))
	} else {
		fmt.Fprintf(w, "%s %s\n", stamp, shared.RenderError("rebuild failed: "+res.Error))
	}
}

// serveMetrics starts the /metrics endpoint and returns its shutdown func.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
