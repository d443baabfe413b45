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

// Package project discovers, configures, and orchestrates the workspace's
// sub-projects (spec.md §4.5-§4.7): one Configuration per tsconfig.json/
// jsconfig.json, each owning its own analysis backend.
package project

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

var configFileRe = regexp.MustCompile(`(^|/)[tj]sconfig\.json$`)

// isConfigFile reports whether rel (a "/"-separated path relative to the
// workspace root) names a tsconfig.json or jsconfig.json outside any
// node_modules segment (spec.md §4.5).
func isConfigFile(rel string) bool {
	if strings.Contains(rel, "node_modules/") || strings.HasPrefix(rel, "node_modules/") {
		return false
	}
	return configFileRe.MatchString(rel)
}

// Partition scans fs for configuration files under root and returns the
// directory (as a URI) of each one found, outside node_modules, sorted by
// directory depth descending. getConfiguration picks the deepest matching
// directory itself, so it does not rely on this order (spec.md §3
// "Configuration map").
func Partition(fs *vfs.FS, root uri.URI) []uri.URI {
	var dirs []uri.URI
	seen := map[uri.URI]struct{}{}
	for _, u := range fs.Iterate() {
		rel := relativeTo(root, u)
		if rel == "" || !isConfigFile(rel) {
			continue
		}
		dir := u.Dir()
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return depth(dirs[i]) > depth(dirs[j])
	})
	return dirs
}

func relativeTo(root, u uri.URI) string {
	rf, uf := root.Filename(), u.Filename()
	if !strings.HasPrefix(uf, rf) {
		return ""
	}
	return strings.TrimPrefix(strings.TrimPrefix(uf, rf), "/")
}

func depth(u uri.URI) int {
	return strings.Count(path.Clean(string(u)), "/")
}
