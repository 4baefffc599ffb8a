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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tombee/embctl/internal/build"
	"github.com/tombee/embctl/internal/config"
	"github.com/tombee/embctl/internal/debug"
	"github.com/tombee/embctl/internal/flash"
	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/portwait"
	"github.com/tombee/embctl/internal/procrun"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/toolchain"
	"github.com/tombee/embctl/internal/toolchain/store"
	"github.com/tombee/embctl/internal/tools"
	"github.com/tombee/embctl/internal/tracing"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// App owns the single instance of every orchestrator for one CLI
// invocation.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Runner   *procrun.Runner
	Registry *toolchain.Registry
	Tools    *tools.Locator
	Build    *build.Orchestrator
	Flash    *flash.Orchestrator
	Debug    *debug.Controller

	store  toolchain.Store
	tracer *tracing.Provider
}

// LoadConfig reads the --config file, or the default file when the flag is
// empty, and applies the verbosity flags.
func LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := GetConfigPath(); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	switch {
	case GetVerbose():
		cfg.Log.Level = "debug"
	case GetQuiet():
		cfg.Log.Level = "error"
	}
	return cfg, nil
}

// NewApp wires configuration, logging, tracing, the toolchain registry and
// the orchestrators.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := log.New(&cfg.Log)

	cfg.Tracing.ServiceVersion = version
	tp, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return nil, err
	}

	path, err := cfg.RegistryPath()
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, &embctlerrors.ConfigError{Key: "registry.path", Reason: "cannot resolve registry location", Cause: err}
	}
	st, err := store.Open(ctx, cfg.Registry.Backend, path)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, embctlerrors.Wrap(err, "opening toolchain registry")
	}

	runner := procrun.NewRunner(logger)
	prober := toolchain.NewExecProber(runner, cfg.Toolchains.ProbeTimeout)
	reg, err := toolchain.New(ctx, st, prober, toolchain.DefaultRoots(cfg.SearchPaths()), logger)
	if err != nil {
		_ = st.Close()
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	locator := tools.NewLocator(cfg.Tools)
	waiter := portwait.New(logger).WithInterval(cfg.Debug.PollInterval)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Runner:   runner,
		Registry: reg,
		Tools:    locator,
		Build:    build.New(runner, logger),
		Flash:    flash.New(runner, locator, logger),
		Debug: debug.New(runner, locator, waiter, debug.Options{
			Host:         cfg.Debug.Host,
			Port:         cfg.Debug.Port,
			ReadyTimeout: cfg.Debug.ReadyTimeout,
			AttachGrace:  cfg.Debug.AttachGrace,
		}, logger),
		store:  st,
		tracer: tp,
	}, nil
}

// Close stops any debug session, flushes spans and closes the registry.
func (a *App) Close(ctx context.Context) error {
	a.Debug.Stop()
	return errors.Join(a.tracer.Shutdown(ctx), a.store.Close())
}

// LoadProject reads the project selected by --project.
func LoadProject() (project.Descriptor, error) {
	return project.Load(GetProjectDir())
}

// ResolveToolchain returns the toolchain with id, or the first valid
// registered toolchain able to build p when id is empty.
func (a *App) ResolveToolchain(ctx context.Context, p project.Descriptor, id string) (toolchain.Descriptor, error) {
	want := p.Processor.Toolchain()
	if id != "" {
		tc, ok := a.Registry.Get(id)
		if !ok {
			return toolchain.Descriptor{}, &embctlerrors.NotFoundError{Resource: "toolchain", ID: id}
		}
		if tc.Family != want {
			return toolchain.Descriptor{}, &embctlerrors.PreconditionError{
				Kind:    embctlerrors.KindUnsupportedFamily,
				Subject: id,
				Message: fmt.Sprintf("toolchain cannot serve %s projects", p.Processor),
				Hint:    fmt.Sprintf("choose a %s toolchain", want),
			}
		}
		return tc, nil
	}

	tc, ok := a.Registry.SelectBest(ctx, p.Processor)
	if !ok {
		return toolchain.Descriptor{}, &embctlerrors.PreconditionError{
			Kind:    embctlerrors.KindMissingTool,
			Subject: want.String(),
			Message: "no valid toolchain registered",
			Hint:    "run 'embctl toolchain detect' or 'embctl toolchain add'",
		}
	}
	return tc, nil
}

// OutputSink streams tool output to w unless --quiet or --json is set.
func OutputSink(w io.Writer) procrun.Sink {
	if GetQuiet() || GetJSON() {
		return procrun.Discard
	}
	if w == nil {
		w = os.Stdout
	}
	return procrun.FromWriter(w)
}
