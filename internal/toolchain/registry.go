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

// Package toolchain keeps the registry of installed compiler toolchains:
// detection, validation and per-family selection.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/metrics"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

// Store persists the registry contents.
type Store interface {
	// Load returns the persisted descriptors in insertion order. A store
	// that was never written returns an empty list.
	Load(ctx context.Context) ([]Descriptor, error)
	// Save replaces the persisted contents.
	Save(ctx context.Context, items []Descriptor) error
	Close() error
}

// InvalidReason classifies a failed validation.
type InvalidReason int

const (
	ReasonNone InvalidReason = iota
	// ReasonMissingBinary means the compiler executable does not exist.
	ReasonMissingBinary
	// ReasonNotRunnable means the compiler exists but the version probe failed.
	ReasonNotRunnable
)

func (r InvalidReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMissingBinary:
		return "missing_binary"
	case ReasonNotRunnable:
		return "not_runnable"
	default:
		return "unknown"
	}
}

// Validation is the result of Validate.
type Validation struct {
	Valid   bool
	Reason  InvalidReason
	Message string
	// Version is parsed from the probe output of a valid compiler.
	Version string
}

// Registry owns the set of known toolchains. Every mutation is written
// through to the Store before it becomes visible.
type Registry struct {
	store  Store
	prober Prober
	roots  Roots
	logger *slog.Logger

	mu    sync.Mutex
	items []Descriptor
}

// New loads the registry from store.
func New(ctx context.Context, store Store, prober Prober, roots Roots, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	items, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load toolchain registry: %w", err)
	}
	r := &Registry{
		store:  store,
		prober: prober,
		roots:  roots,
		logger: logger.With(slog.String("component", "toolchain")),
		items:  items,
	}
	r.logger.Debug("toolchain registry loaded", slog.Int("count", len(items)))
	r.publishCounts()
	return r, nil
}

// List returns a copy of every descriptor in insertion order.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// ByFamily returns the descriptors of one toolchain family in insertion order.
func (r *Registry) ByFamily(fam family.Toolchain) []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Descriptor
	for _, d := range r.items {
		if d.Family == fam {
			out = append(out, d)
		}
	}
	return out
}

// Get looks up a descriptor by id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return Descriptor{}, false
	}
	return r.items[i], true
}

func (r *Registry) indexOf(id string) int {
	return slices.IndexFunc(r.items, func(d Descriptor) bool { return d.ID == id })
}

func (r *Registry) hasKey(k Key) bool {
	return slices.ContainsFunc(r.items, func(d Descriptor) bool { return d.Key() == k })
}

// commit persists next and swaps it in. The in-memory set is unchanged when
// the store write fails.
func (r *Registry) commit(ctx context.Context, next []Descriptor) error {
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save toolchain registry: %w", err)
	}
	r.items = next
	r.publishCountsLocked()
	return nil
}

func (r *Registry) publishCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishCountsLocked()
}

func (r *Registry) publishCountsLocked() {
	for _, fam := range family.Toolchains() {
		n := 0
		for _, d := range r.items {
			if d.Family == fam {
				n++
			}
		}
		metrics.SetRegistered(fam.String(), n)
	}
}

// Validate checks that the compiler exists and answers a version query.
func (r *Registry) Validate(ctx context.Context, d Descriptor) Validation {
	path := d.CompilerPath()
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Validation{Reason: ReasonMissingBinary, Message: "compiler executable not found: " + path}
	}

	out, err := r.prober.Probe(ctx, path)
	if err != nil {
		var te *embctlerrors.TimeoutError
		msg := "compiler could not be run: " + err.Error()
		if errors.As(err, &te) {
			msg = fmt.Sprintf("compiler did not answer a version query within %s", te.Duration)
		}
		return Validation{Reason: ReasonNotRunnable, Message: msg}
	}
	return Validation{Valid: true, Version: ParseVersion(out)}
}

// Detect scans the configured roots, probes each compiler found and merges
// descriptors with a new (family, root) key into the registry. A candidate
// whose probe fails is skipped. It returns every toolchain found this run.
func (r *Registry) Detect(ctx context.Context) ([]Descriptor, error) {
	var found []Descriptor
	perFamily := make(map[family.Toolchain]int)

	for _, c := range r.roots.scan() {
		d := NewDescriptor(c.family, c.root, c.binDir, c.version)
		out, err := r.prober.Probe(ctx, d.CompilerPath())
		if err != nil {
			r.logger.Debug("skipping toolchain candidate",
				slog.String("family", c.family.String()),
				slog.String("root", c.root),
				slog.Any("error", err))
			continue
		}
		if c.version == "" {
			d = NewDescriptor(c.family, c.root, c.binDir, ParseVersion(out))
		}
		d.Detected = true
		found = append(found, d)
		perFamily[d.Family]++
	}

	for fam, n := range perFamily {
		metrics.RecordDetected(fam.String(), n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := slices.Clone(r.items)
	added := 0
	for i, d := range found {
		if j := slices.IndexFunc(next, func(e Descriptor) bool { return e.Key() == d.Key() }); j >= 0 {
			found[i] = next[j]
			continue
		}
		d.ID = uniqueIn(next, d.ID)
		d.AddedAt = time.Now().UTC()
		found[i].ID = d.ID
		next = append(next, d)
		added++
		r.logger.Info("toolchain detected",
			slog.String("toolchain_id", d.ID),
			slog.String("family", d.Family.String()),
			slog.String("root", d.Root),
			slog.String("version", d.Version))
	}

	if err := r.commit(ctx, next); err != nil {
		return found, err
	}
	r.logger.Info("toolchain detection finished", slog.Int("found", len(found)), slog.Int("added", added))
	return found, nil
}

// uniqueIn returns id, or id with a short random suffix when already taken.
func uniqueIn(items []Descriptor, id string) string {
	for slices.ContainsFunc(items, func(d Descriptor) bool { return d.ID == id }) {
		id = id + "-" + uuid.NewString()[:8]
	}
	return id
}

// Add validates d and appends it. It fails with a *errors.ValidationError
// when the compiler is unusable and a *errors.DuplicateError when the
// (family, root) pair is already registered. Empty fields are filled from
// the family defaults.
func (r *Registry) Add(ctx context.Context, d Descriptor) (Descriptor, error) {
	if !d.Family.Valid() {
		return Descriptor{}, &embctlerrors.ValidationError{Field: "family", Message: "unknown toolchain family"}
	}
	if d.Root == "" {
		return Descriptor{}, &embctlerrors.ValidationError{Field: "root", Message: "root path is required"}
	}
	d = withDefaults(d)

	v := r.Validate(ctx, d)
	if !v.Valid {
		return Descriptor{}, &embctlerrors.ValidationError{Field: "compiler", Message: v.Message}
	}
	if d.Version == "" {
		d.Version = v.Version
	}
	if d.Name == "" {
		d.Name = NewDescriptor(d.Family, d.Root, "", d.Version).Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasKey(d.Key()) {
		return Descriptor{}, &embctlerrors.DuplicateError{Resource: "toolchain", Key: d.Family.String() + " " + d.Key().Root}
	}
	d.ID = uniqueIn(r.items, d.ID)
	if d.AddedAt.IsZero() {
		d.AddedAt = time.Now().UTC()
	}

	next := append(slices.Clone(r.items), d)
	if err := r.commit(ctx, next); err != nil {
		return Descriptor{}, err
	}
	r.logger.Info("toolchain added", slog.String("toolchain_id", d.ID), slog.String("family", d.Family.String()))
	return d, nil
}

func withDefaults(d Descriptor) Descriptor {
	def := NewDescriptor(d.Family, d.Root, "", d.Version)
	if d.Compiler == "" {
		binDir := ""
		if _, err := os.Stat(NewDescriptor(d.Family, d.Root, "bin", "").CompilerPath()); err == nil {
			binDir = "bin"
		}
		def = NewDescriptor(d.Family, d.Root, binDir, d.Version)
		d.Compiler = def.Compiler
	}
	if d.Linker == "" {
		d.Linker = def.Linker
	}
	if d.Debugger == "" {
		d.Debugger = def.Debugger
	}
	if d.ID == "" {
		d.ID = d.Family.String() + "-" + uuid.NewString()[:8]
	}
	return d
}

// Remove deletes the descriptor with the given id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return &embctlerrors.NotFoundError{Resource: "toolchain", ID: id}
	}
	next := slices.Delete(slices.Clone(r.items), i, i+1)
	if err := r.commit(ctx, next); err != nil {
		return err
	}
	r.logger.Info("toolchain removed", slog.String("toolchain_id", id))
	return nil
}

// SelectBest returns the first registered toolchain for the processor's
// toolchain family that validates now. Order is insertion order.
func (r *Registry) SelectBest(ctx context.Context, proc family.Processor) (Descriptor, bool) {
	fam := proc.Toolchain()
	if !fam.Valid() {
		return Descriptor{}, false
	}
	for _, d := range r.ByFamily(fam) {
		v := r.Validate(ctx, d)
		if v.Valid {
			return d, true
		}
		r.logger.Debug("toolchain failed validation",
			slog.String("toolchain_id", d.ID),
			slog.String("reason", v.Reason.String()),
			slog.String("message", v.Message))
	}
	return Descriptor{}, false
}
