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

package toolchain

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/tombee/embctl/internal/procrun"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// DefaultProbeTimeout bounds a single version probe.
const DefaultProbeTimeout = 5 * time.Second

// UnknownVersion is recorded when no version number can be parsed.
const UnknownVersion = "unknown"

var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// ParseVersion extracts the first dotted x.y.z number from text.
func ParseVersion(text string) string {
	if m := versionPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return UnknownVersion
}

// Prober runs a version query against an executable and returns its output.
type Prober interface {
	Probe(ctx context.Context, executable string) (string, error)
}

// ExecProber invokes "<executable> --version" with a timeout.
type ExecProber struct {
	runner  *procrun.Runner
	timeout time.Duration
}

// NewExecProber creates a prober. A non-positive timeout uses DefaultProbeTimeout.
func NewExecProber(runner *procrun.Runner, timeout time.Duration) *ExecProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &ExecProber{runner: runner, timeout: timeout}
}

// Probe implements Prober. A probe that outlives the timeout fails with a
// *errors.TimeoutError.
func (p *ExecProber) Probe(ctx context.Context, executable string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var out procrun.Buffer
	_, err := p.runner.Run(ctx, procrun.Command{Path: executable, Args: []string{"--version"}}, &out)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out.String(), &embctlerrors.TimeoutError{Operation: "version probe", Duration: p.timeout, Cause: err}
	}
	return out.String(), err
}
