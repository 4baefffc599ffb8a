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

package tools

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/embctl/internal/testing/fakebin"
)

func TestLocator_Find(t *testing.T) {
	dir := t.TempDir()

	override := fakebin.WriteFile(t, filepath.Join(dir, "custom", "stlink"), "x")
	ocdHome := filepath.Join(dir, "ocd")
	ocd := fakebin.WriteFile(t, filepath.Join(ocdHome, "bin", "openocd"), "x")
	pathDir := filepath.Join(dir, "path")
	dslite := fakebin.WriteFile(t, filepath.Join(pathDir, "dslite.sh"), "x")

	l := &Locator{goos: "linux"}

	_, ok := l.Find(STLink)
	assert.False(t, ok)

	l.Overrides.STLink = override
	got, ok := l.Find(STLink)
	assert.True(t, ok)
	assert.Equal(t, override, got)

	l.OpenOCDHome = ocdHome
	got, ok = l.Find(OpenOCD)
	assert.True(t, ok)
	assert.Equal(t, ocd, got)

	_, ok = l.Find(UniFlash)
	assert.False(t, ok)
	l.PathEnv = filepath.Join(dir, "empty") + string(filepath.ListSeparator) + pathDir
	got, ok = l.Find(UniFlash)
	assert.True(t, ok)
	assert.Equal(t, dslite, got)
}

func TestLocator_MissingOverrideFallsThrough(t *testing.T) {
	dir := t.TempDir()
	onPath := fakebin.WriteFile(t, filepath.Join(dir, "openocd"), "x")
	l := &Locator{
		goos:      "linux",
		Overrides: Overrides{OpenOCD: filepath.Join(dir, "does-not-exist")},
		PathEnv:   dir,
	}
	got, ok := l.Find(OpenOCD)
	assert.True(t, ok)
	assert.Equal(t, onPath, got)
}

func TestWellKnown(t *testing.T) {
	assert.Contains(t, wellKnown(OpenOCD, "windows", ""), `C:\OpenOCD\bin\openocd.exe`)
	assert.Contains(t, wellKnown(UniFlash, "windows", ""), `C:\ti\uniflash\dslite.bat`)
	assert.Len(t, wellKnown(STLink, "windows", ""), 2)
	assert.Empty(t, wellKnown(STLink, "linux", ""))
	assert.Equal(t, "ST-Link", STLink.String())
	assert.Equal(t, "OpenOCD", OpenOCD.String())
	assert.Equal(t, "UniFlash", UniFlash.String())
}
