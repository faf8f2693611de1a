// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package registry holds the table of known constellations and how each
// one is addressed on the upstream catalog.
package registry

import (
	"os"
	"sort"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"
)

// Error is the default error class for the registry.
var Error = errs.Class("constellation registry")

// Config holds configuration for the constellation registry.
type Config struct {
	File string `help:"yaml file with constellation entries, merged over the builtin set" default:""`
}

// Entry describes a single constellation.
//
// Query is the raw upstream predicate. Multiple alternatives are separated
// by commas and are merged client-side, because the upstream cannot OR
// name patterns natively. An empty Query means the constellation cannot be
// harvested and is skipped by all jobs. The registry is data: predicates
// are knowingly imperfect (NAVSTAR for gps, COSMOS for glonass) and are
// curated outside of this service.
type Entry struct {
	Slug        string `yaml:"-"`
	Name        string `yaml:"name"`
	Query       string `yaml:"query"`
	Category    string `yaml:"category"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// HasQuery reports whether the entry can be fetched from the upstream.
func (entry Entry) HasQuery() bool { return entry.Query != "" }

// Priority is the order in which constellations are hydrated on first
// run. Remaining registry entries follow in registry order.
var Priority = []string{
	"starlink",
	"oneweb",
	"gps",
	"stations",
	"iridium",
	"globalstar",
	"galileo",
	"beidou",
	"glonass",
}

// Registry is an immutable lookup of constellation entries.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// Builtin returns the registry with only the builtin entries.
func Builtin() *Registry {
	reg := &Registry{entries: map[string]Entry{}}
	for _, entry := range builtin {
		reg.entries[entry.Slug] = entry
		reg.order = append(reg.order, entry.Slug)
	}
	return reg
}

// Open returns the builtin registry merged with the file from config,
// when one is configured.
func Open(config Config) (*Registry, error) {
	reg := Builtin()
	if config.File == "" {
		return reg, nil
	}

	data, err := os.ReadFile(config.File)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var loaded map[string]Entry
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, Error.New("malformed registry file %q: %w", config.File, err)
	}

	extra := []string{}
	for slug, entry := range loaded {
		entry.Slug = slug
		if _, ok := reg.entries[slug]; !ok {
			extra = append(extra, slug)
		}
		reg.entries[slug] = entry
	}
	sort.Strings(extra)
	reg.order = append(reg.order, extra...)

	return reg, nil
}

// Get returns the entry for the slug.
func (reg *Registry) Get(slug string) (Entry, error) {
	entry, ok := reg.entries[slug]
	if !ok {
		return Entry{}, Error.New("unknown constellation %q", slug)
	}
	return entry, nil
}

// All returns every entry in stable order.
func (reg *Registry) All() []Entry {
	entries := make([]Entry, 0, len(reg.order))
	for _, slug := range reg.order {
		entries = append(entries, reg.entries[slug])
	}
	return entries
}

// Slugs returns every known slug in stable order.
func (reg *Registry) Slugs() []string {
	return append([]string(nil), reg.order...)
}

// InPriorityOrder returns all harvestable entries, priority constellations
// first, the rest in registry order.
func (reg *Registry) InPriorityOrder() []Entry {
	seen := map[string]bool{}
	entries := []Entry{}
	for _, slug := range Priority {
		if entry, ok := reg.entries[slug]; ok && entry.HasQuery() {
			entries = append(entries, entry)
			seen[slug] = true
		}
	}
	for _, slug := range reg.order {
		entry := reg.entries[slug]
		if !seen[slug] && entry.HasQuery() {
			entries = append(entries, entry)
		}
	}
	return entries
}
