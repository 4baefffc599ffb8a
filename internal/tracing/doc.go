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

/*
Package tracing provides OpenTelemetry spans for toolchain operations.

Each build, flash, erase and debug start opens a root span; build stages
open child spans. Spans are exported to the console when tracing is
enabled (tracing.enabled in the config file or EMBCTL_TRACING=1) and go to
the global no-op provider otherwise.

# Quick Start

	tp, err := tracing.Setup(tracing.Config{Enabled: true, ServiceVersion: version})
	if err != nil {
	    return err
	}
	defer tp.Shutdown(ctx)

	ctx, span := tracing.StartOperation(ctx, "build", proj.Name, "stm32")
	defer func() { span.End(err) }()
*/
package tracing
