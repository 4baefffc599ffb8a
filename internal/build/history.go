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

package build

import "time"

// HistoryEntry summarizes one build attempt.
type HistoryEntry struct {
	ID        string
	Timestamp time.Time
	Project   string
	Processor string
	Success   bool
	Duration  time.Duration
	Error     string
}

func (o *Orchestrator) record(res *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, HistoryEntry{
		ID:        res.ID,
		Timestamp: time.Now(),
		Project:   res.Project,
		Processor: res.Processor,
		Success:   res.Success,
		Duration:  res.Duration,
		Error:     res.Error,
	})
}

// History returns every build attempt since the orchestrator was created,
// oldest first.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}
