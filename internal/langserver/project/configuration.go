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

package project

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

// InitState is a Configuration's position in its lifecycle state machine
// (spec.md §4.6).
type InitState int

// Configuration lifecycle states, in the order a Configuration passes
// through them.
const (
	StateUninit InitState = iota
	StateParsed
	StateBasicReady
	StateAllReady
)

// ErrConfigParse is returned when a tsconfig.json/jsconfig.json fails to
// parse; wraps the originating JSON error (spec.md §7 "ConfigParse").
const ErrConfigParse = errString("invalid project configuration")

type errString string

func (e errString) Error() string { return string(e) }

var (
	sourceExtRe = regexp.MustCompile(`\.(ts|tsx|js|jsx)$`)
	globalDeclRe = regexp.MustCompile(`(^|/)(globals?\.d\.ts|tslib/tslib\.d\.ts|typings/.*\.d\.ts|tsd\.d\.ts)$|/@types/[^/]+/`)
	declRe       = regexp.MustCompile(`\.d\.ts$`)
)

// tsconfigFile is the subset of tsconfig.json/jsconfig.json the core reads.
type tsconfigFile struct {
	Files           []string               `json:"files"`
	Include         []string                `json:"include"`
	Exclude         []string                `json:"exclude"`
	CompilerOptions json.RawMessage         `json:"compilerOptions"`
}

type compilerOptionsFile struct {
	Module  string `json:"module"`
	Target  string `json:"target"`
	AllowJs bool   `json:"allowJs"`
}

// Configuration is a single sub-project: its config file, its expected and
// added files, and its backend (spec.md §4.6, §3 "Configuration").
type Configuration struct {
	mu sync.Mutex

	fs      *vfs.FS
	log     logging.Logger
	factory backend.Factory

	// configURI is the tsconfig.json/jsconfig.json this Configuration was
	// parsed from; empty for the synthetic root fallback (spec.md §4.5).
	configURI uri.URI
	rootURI   uri.URI

	state    InitState
	complete bool
	allowJs  bool

	compilerOptions backend.CompilerOptions

	expectedFiles []string
	addedFiles    map[string]struct{}
	versions      map[string]int
	projectVer    int

	be backend.Backend
}

// New constructs a Configuration. configURI is empty for the synthetic
// root fallback configuration (spec.md §4.5 "fallback configuration rooted
// at the workspace root").
func New(fs *vfs.FS, configURI, rootURI uri.URI, factory backend.Factory, log logging.Logger) *Configuration {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Configuration{
		fs:         fs,
		log:        log,
		factory:    factory,
		configURI:  configURI,
		rootURI:    rootURI,
		addedFiles: make(map[string]struct{}),
		versions:   make(map[string]int),
	}
}

// RootURI returns the directory this configuration governs.
func (c *Configuration) RootURI() uri.URI {
	return c.rootURI
}

// State returns the configuration's current lifecycle state.
func (c *Configuration) State() InitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset returns the configuration to StateUninit, dropping its backend,
// added-files set, and init state (spec.md §4.6 "reset returns to uninit").
func (c *Configuration) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUninit
	c.complete = false
	c.be = nil
	c.addedFiles = make(map[string]struct{})
	c.expectedFiles = nil
}

// Init parses the config file (if any) and computes expected_files; the
// backend and its host are built later, on the first Backend call.
// Idempotent: a second call while already parsed or further along is a no-op (spec.md §4.6 "transitions are
// idempotent").
func (c *Configuration) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninit {
		return nil
	}

	opts := backend.CompilerOptions{Module: "commonjs", Raw: map[string]interface{}{}}
	allowJs := false

	if c.configURI != "" {
		body, err := c.fs.GetContent(c.configURI)
		if err != nil {
			return errors.Wrap(err, string(ErrConfigParse))
		}
		var parsed tsconfigFile
		if err := json.Unmarshal(stripJSONComments(body), &parsed); err != nil {
			return errors.Wrap(err, string(ErrConfigParse))
		}
		if len(parsed.CompilerOptions) > 0 {
			var co compilerOptionsFile
			if err := json.Unmarshal(parsed.CompilerOptions, &co); err != nil {
				return errors.Wrap(err, string(ErrConfigParse))
			}
			if co.Module != "" {
				opts.Module = co.Module
			}
			opts.Target = co.Target
			opts.AllowJs = co.AllowJs
		}
		if strings.HasSuffix(filepath.Base(c.configURI.Filename()), "jsconfig.json") {
			allowJs = true
		}
	} else {
		// fallback configuration: CommonJS + allowJs, per spec.md §4.5.
		allowJs = true
	}
	opts.AllowJs = opts.AllowJs || allowJs
	c.allowJs = allowJs
	c.compilerOptions = opts

	expected, err := c.fs.ReadDirectory(c.rootURI.Filename(), nil, []string{"**/node_modules/**"}, nil)
	if err != nil {
		return errors.Wrap(err, string(ErrConfigParse))
	}
	var filtered []string
	for _, f := range expected {
		if sourceExtRe.MatchString(f) {
			filtered = append(filtered, f)
		}
	}
	filtered = append(filtered, globalDeclFiles(c.fs, c.rootURI.Filename())...)
	sort.Strings(filtered)
	c.expectedFiles = dedupe(filtered)

	c.state = StateParsed
	return nil
}

// globalDeclFiles walks node_modules under root looking for globally
// scoped declaration files (spec.md §4.6 "globals?.d.ts, tslib/tslib.d.ts,
// @types/<pkg>/, typings/, tsd.d.ts").
func globalDeclFiles(fs *vfs.FS, root string) []string {
	nodeModules := filepath.ToSlash(filepath.Join(root, "node_modules"))
	all, err := fs.ReadDirectory(nodeModules, []string{".d.ts"}, nil, nil)
	if err != nil {
		return nil
	}
	var out []string
	for _, f := range all {
		if globalDeclRe.MatchString(f) {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// isGlobalOrNonDependencyDecl reports whether f should be loaded during
// ensure_basic_files: every globally scoped declaration file, plus every
// non-node_modules declaration file (spec.md §4.6).
func isGlobalOrNonDependencyDecl(f string) bool {
	if globalDeclRe.MatchString(f) {
		return true
	}
	if !declRe.MatchString(f) {
		return false
	}
	return !strings.Contains(f, "node_modules/")
}

// EnsureBasicFiles registers every expected file needed for hover-scope
// requests: global declarations and non-dependency declaration files
// (spec.md §4.6). Idempotent past StateBasicReady.
func (c *Configuration) EnsureBasicFiles() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= StateBasicReady {
		return nil
	}
	for _, f := range c.expectedFiles {
		if isGlobalOrNonDependencyDecl(f) {
			c.addFileLocked(f)
		}
	}
	c.state = StateBasicReady
	c.incProjectVersionLocked()
	return nil
}

// EnsureAllFiles registers every expected file (spec.md §4.6). Idempotent
// once complete.
func (c *Configuration) EnsureAllFiles() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return nil
	}
	for _, f := range c.expectedFiles {
		c.addFileLocked(f)
	}
	c.state = StateAllReady
	c.complete = true
	c.incProjectVersionLocked()
	return nil
}

// AddFile registers f (e.g. a didOpen target not yet in expected_files) and
// bumps the project version.
func (c *Configuration) AddFile(f string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addFileLocked(f)
	c.incProjectVersionLocked()
}

func (c *Configuration) addFileLocked(f string) {
	if _, ok := c.addedFiles[f]; !ok {
		c.addedFiles[f] = struct{}{}
	}
	c.versions[f]++
}

func (c *Configuration) incProjectVersionLocked() {
	c.projectVer++
}

// IncFileVersion bumps f's script version, used by the manager on
// didOpen/Change/Save/Close (spec.md §4.7).
func (c *Configuration) IncFileVersion(f string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[f]++
	c.incProjectVersionLocked()
}

// Backend lazily constructs (via the configured Factory) and returns this
// configuration's backend, bound to its Host.
func (c *Configuration) Backend() (backend.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.be != nil {
		return c.be, nil
	}
	if c.factory == nil {
		return nil, errors.New("configuration has no backend factory")
	}
	be, err := c.factory(&configHost{c: c})
	if err != nil {
		return nil, err
	}
	c.be = be
	return be, nil
}

// configHost adapts Configuration to backend.Host. Held as a distinct type
// (rather than Configuration implementing Host directly) so the backend
// never sees Configuration's mutating methods.
type configHost struct {
	c *Configuration
}

func (h *configHost) GetScriptFileNames() []string {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	out := make([]string, 0, len(h.c.addedFiles))
	for f := range h.c.addedFiles {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (h *configHost) GetScriptVersion(fileName string) string {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return strconv.Itoa(h.c.versions[fileName])
}

func (h *configHost) GetScriptSnapshot(fileName string) (string, bool) {
	body, err := h.c.fs.ReadFile(fileName)
	if err != nil {
		return "", false
	}
	return body, true
}

func (h *configHost) GetCompilationSettings() backend.CompilerOptions {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.compilerOptions
}

func (h *configHost) GetCurrentDirectory() string {
	return h.c.rootURI.Filename()
}

func (h *configHost) GetDefaultLibFileName() string {
	return "lib.d.ts"
}

func (h *configHost) GetProjectVersion() string {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return strconv.Itoa(h.c.projectVer)
}

// stripJSONComments removes // and /* */ comments from a tsconfig.json
// body. tsconfig.json conventionally tolerates comments despite being
// named .json; the JSON parsed after stripping is handled by the standard
// library, the one stdlib-only leaf in the config reader (no JSONC parser
// is present anywhere in the pack; see DESIGN.md).
func stripJSONComments(body string) []byte {
	var out strings.Builder
	inString, inLineComment, inBlockComment := false, false, false
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
				out.WriteRune(c)
			}
		case inBlockComment:
			if c == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				inBlockComment = false
				i++
			}
		case inString:
			out.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				out.WriteRune(runes[i+1])
				i++
				continue
			}
			if c == '"' {
				inString = false
			}
		default:
			if c == '"' {
				inString = true
				out.WriteRune(c)
			} else if c == '/' && i+1 < len(runes) && runes[i+1] == '/' {
				inLineComment = true
				i++
			} else if c == '/' && i+1 < len(runes) && runes[i+1] == '*' {
				inBlockComment = true
				i++
			} else {
				out.WriteRune(c)
			}
		}
	}
	return []byte(out.String())
}
