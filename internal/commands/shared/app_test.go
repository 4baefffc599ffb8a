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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/project"
	"github.com/tombee/embctl/internal/testing/fakebin"
	"github.com/tombee/embctl/internal/toolchain"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// testApp wires an App against a registry in a temp directory.
func testApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("EMBCTL_REGISTRY", "")
	t.Setenv("EMBCTL_REGISTRY_BACKEND", "")

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "registry:\n  path: " + filepath.Join(dir, "toolchains.json") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { SetConfigPathForTest("") })

	app, err := NewApp(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestNewApp(t *testing.T) {
	app := testApp(t)
	assert.NotNil(t, app.Build)
	assert.NotNil(t, app.Flash)
	assert.NotNil(t, app.Debug)
	assert.Empty(t, app.Registry.List())
}

func TestNewApp_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("registry:\n  backend: postgres\n"), 0o600))
	SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { SetConfigPathForTest("") })

	_, err := NewApp(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitInvalidConfig, ExitCodeFor(err))
}

func TestResolveToolchain(t *testing.T) {
	fakebin.SkipUnlessPOSIX(t)
	app := testApp(t)
	ctx := context.Background()
	stm32 := toolchainProject(t, family.STM32)

	_, err := app.ResolveToolchain(ctx, stm32, "")
	pe, ok := embctlerrors.Precondition(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, embctlerrors.KindMissingTool, pe.Kind)

	_, err = app.ResolveToolchain(ctx, stm32, "nope")
	var nf *embctlerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)

	root := filepath.Join(t.TempDir(), "gcc-arm")
	fakebin.Write(t, filepath.Join(root, "bin"), family.ArmGCC.CompilerName(), fakebin.Version)
	added, err := app.Registry.Add(ctx, toolchain.Descriptor{Family: family.ArmGCC, Root: root})
	require.NoError(t, err)

	got, err := app.ResolveToolchain(ctx, stm32, "")
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)

	got, err = app.ResolveToolchain(ctx, stm32, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)

	_, err = app.ResolveToolchain(ctx, toolchainProject(t, family.C67xx), added.ID)
	pe, ok = embctlerrors.Precondition(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, embctlerrors.KindUnsupportedFamily, pe.Kind)
}

func toolchainProject(t *testing.T, proc family.Processor) project.Descriptor {
	t.Helper()
	return project.Descriptor{Name: "p", Root: t.TempDir(), Processor: proc}
}

func TestOutputSink(t *testing.T) {
	var b strings.Builder
	OutputSink(&b).Append("hello\n")
	assert.Equal(t, "hello\n", b.String())

	_, quiet, _, _, _ := RegisterFlagPointers()
	*quiet = true
	defer func() { *quiet = false }()
	OutputSink(&b).Append("dropped\n")
	assert.Equal(t, "hello\n", b.String())
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	SetProjectDirForTest(dir)
	t.Cleanup(func() { SetProjectDirForTest("") })

	_, err := LoadProject()
	assert.Equal(t, ExitPrecondition, ExitCodeFor(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.yaml"), []byte("name: blinky\nprocessor: stm32\n"), 0o644))
	p, err := LoadProject()
	require.NoError(t, err)
	assert.Equal(t, "blinky", p.Name)
	assert.Equal(t, family.STM32, p.Processor)
}
