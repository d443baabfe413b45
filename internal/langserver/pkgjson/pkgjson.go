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

// Package pkgjson reads package.json files to answer
// workspace/xdependencies and workspace/xpackages (spec.md §4.8). It is
// one stdlib-only leaf in the module: package.json is plain JSON (unlike
// tsconfig.json, which tolerates comments), and no third-party library in
// the pack offers anything beyond what encoding/json already does for a
// flat key lookup; see DESIGN.md.
package pkgjson

import (
	"encoding/json"
	"sort"
)

// Package is the subset of package.json fields the core reads, plus the
// raw dependency maps needed to build {name, version, repoURL} package
// descriptors (spec.md §3 "Symbol descriptor").
type Package struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Repository      Repository        `json:"repository"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Repository is package.json's repository field, which may be a bare
// string or an object; UnmarshalJSON normalizes both to URL.
type Repository struct {
	URL string
}

// UnmarshalJSON accepts either `"repository": "url"` or
// `"repository": {"type": "git", "url": "url"}`.
func (r *Repository) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		r.URL = asString
		return nil
	}
	var asObject struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	r.URL = asObject.URL
	return nil
}

// Parse decodes a package.json body.
func Parse(body string) (*Package, error) {
	var pkg Package
	if err := json.Unmarshal([]byte(body), &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Attribute is one entry of workspace/xdependencies: a dependency
// coordinate plus the hint of the package that declared it.
type Attribute struct {
	Name                string
	Version             string
	DependeePackageName string
}

// ListDependencies lists every runtime and dev dependency declared by pkg,
// in a deterministic (sorted-by-name) order.
func (p *Package) ListDependencies() []Attribute {
	names := make([]string, 0, len(p.Dependencies)+len(p.DevDependencies))
	versions := map[string]string{}
	for name, version := range p.Dependencies {
		names = append(names, name)
		versions[name] = version
	}
	for name, version := range p.DevDependencies {
		if _, ok := versions[name]; ok {
			continue
		}
		names = append(names, name)
		versions[name] = version
	}
	sort.Strings(names)
	out := make([]Attribute, 0, len(names))
	for _, name := range names {
		out = append(out, Attribute{Name: name, Version: versions[name], DependeePackageName: p.Name})
	}
	return out
}
