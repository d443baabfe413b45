// Copyright 2024 The javascript-typescript-langserver Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plugin resolves and wraps language-service plugins configured on
// a project (spec.md §4.10).
package plugin

import (
	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

const errResolvePlugin = "failed to resolve plugin"

// Config is the subset of tsconfig.json's plugin configuration the loader
// consults (spec.md §4.10).
type Config struct {
	GlobalPlugins         []string
	PluginProbeLocations  []string
	AllowLocalPluginLoads bool
	// PeerModuleDir is the directory the analysis backend itself is
	// installed into; plugins are conventionally co-located as peer
	// packages there.
	PeerModuleDir string
	// PluginConfigs holds each plugin's own section of
	// compilerOptions.plugins, keyed by plugin name.
	PluginConfigs map[string]map[string]interface{}
}

// Resolver resolves a plugin module name to a loadable module, searching
// the given directories in order (spec.md §4.10 "the backend's own
// Node-style module resolver").
type Resolver interface {
	ResolveModule(name string, searchDirs []string) (factory interface{}, ok bool)
}

// ApplyProxy wraps a resolved plugin factory with its configuration,
// returning the proxied language service (or module exports) the caller
// installs.
type ApplyProxy func(factory interface{}, pluginConfig map[string]interface{}) (interface{}, error)

// Loader resolves and applies plugins declared on a Configuration.
type Loader struct {
	resolver Resolver
	log      logging.Logger
}

// New constructs a Loader using resolver to locate plugin modules.
func New(resolver Resolver, log logging.Logger) *Loader {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Loader{resolver: resolver, log: log}
}

// Load resolves every configured plugin and applies it through apply. A
// plugin that cannot be resolved or whose apply fails is logged and
// skipped; it does not abort the remaining plugins (spec.md §4.10 "on
// failure, log and continue with other plugins").
func (l *Loader) Load(cfg Config, workspaceRoot string, apply ApplyProxy) {
	dirs := searchDirs(cfg, workspaceRoot)
	for _, name := range cfg.GlobalPlugins {
		factory, ok := l.resolver.ResolveModule(name, dirs)
		if !ok {
			l.log.Debug(errResolvePlugin, "plugin", name)
			continue
		}
		if _, err := apply(factory, cfg.PluginConfigs[name]); err != nil {
			l.log.Debug("failed to apply plugin", "plugin", name, "error", err)
		}
	}
}

// searchDirs orders the candidate plugin locations: the peer-module
// directory first, then configured probe locations, then (if allowed) the
// workspace root (spec.md §4.10).
func searchDirs(cfg Config, workspaceRoot string) []string {
	var dirs []string
	if cfg.PeerModuleDir != "" {
		dirs = append(dirs, cfg.PeerModuleDir)
	}
	dirs = append(dirs, cfg.PluginProbeLocations...)
	if cfg.AllowLocalPluginLoads && workspaceRoot != "" {
		dirs = append(dirs, workspaceRoot)
	}
	return dirs
}
