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
	"context"
	"strings"
	"sync"

	"github.com/golang/tools/lsp/protocol"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/refs"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

// ErrCancelled is returned by any ensure* operation polled after its
// cancellation token fired (spec.md §7 "Cancelled").
const ErrCancelled = errString("operation cancelled")

// CancelToken is a handle a caller polls during a long-running ensure
// operation; Manager.NewToken registers one centrally so Dispose can cancel
// every outstanding token at once (spec.md §4.7 "Cancellation").
type CancelToken struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// Err returns ErrCancelled if the token has fired, else nil.
func (t *CancelToken) Err() error {
	select {
	case <-t.ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// Manager orchestrates ensure-levels across every Configuration in the
// workspace (spec.md §4.7). It is the sole mutator of the IMFS and the
// configuration map; handlers only read through it.
type Manager struct {
	fs       *vfs.FS
	updater  *vfs.Updater
	resolver *refs.Resolver
	factory  backend.Factory
	log      logging.Logger
	root     uri.URI

	mu         sync.RWMutex
	configs    map[uri.URI]*Configuration // keyed by RootURI
	rootConfig *Configuration

	tokens sync.Map // uuid.UUID -> context.CancelFunc

	structureSF singleflight.Group
	symbolSF    singleflight.Group
	allFilesSF  singleflight.Group
}

// New constructs a Manager rooted at root, pulling content through updater
// and constructing backends via factory.
func New(fs *vfs.FS, updater *vfs.Updater, factory backend.Factory, root uri.URI, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	m := &Manager{
		fs:      fs,
		updater: updater,
		factory: factory,
		root:    root,
		log:     log,
		configs: make(map[uri.URI]*Configuration),
	}
	m.resolver = refs.New(fs, m.moduleResolverFor, log)
	return m
}

func (m *Manager) moduleResolverFor(_ uri.URI) refs.ModuleResolver {
	return moduleResolver{fs: m.fs}
}

// NewToken registers a new cancellation token source; Dispose cancels every
// token it has registered (spec.md §4.7).
func (m *Manager) NewToken(ctx context.Context) (*CancelToken, context.Context) {
	id := uuid.New()
	cctx, cancel := context.WithCancel(ctx)
	t := &CancelToken{id: id, ctx: cctx, cancel: cancel}
	m.tokens.Store(id, cancel)
	return t, cctx
}

// Dispose cancels every outstanding cancellation token the manager has
// registered (spec.md §4.7 "dispose() cancels every outstanding token
// source registered by the manager").
func (m *Manager) Dispose() {
	m.tokens.Range(func(key, value interface{}) bool {
		value.(context.CancelFunc)()
		m.tokens.Delete(key)
		return true
	})
}

// GetConfiguration ascends from p through parent directories, returning the
// first matching configuration, falling back to the root configuration
// (spec.md §4.7, invariant 5).
func (m *Manager) GetConfiguration(p uri.URI) (*Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.getConfigurationLocked(p)
	if cfg == nil {
		return nil, errors.New("no configuration found for " + string(p))
	}
	return cfg, nil
}

func (m *Manager) getConfigurationLocked(p uri.URI) *Configuration {
	var best *Configuration
	bestLen := -1
	for root, cfg := range m.configs {
		if uri.HasPrefixSegment(p, root) && len(root) > bestLen {
			best, bestLen = cfg, len(root)
		}
	}
	if best != nil {
		return best
	}
	return m.rootConfig
}

// AllConfigurations returns every known configuration, root fallback last.
func (m *Manager) AllConfigurations() []*Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Configuration, 0, len(m.configs)+1)
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	if m.rootConfig != nil {
		out = append(out, m.rootConfig)
	}
	return out
}

// createConfigurations (re)creates a Configuration for every discovered
// tsconfig.json/jsconfig.json directory, and a fallback root configuration
// if none were discovered (spec.md §4.5).
func (m *Manager) createConfigurations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	dirs := Partition(m.fs, m.root)
	for _, dir := range dirs {
		if _, ok := m.configs[dir]; ok {
			continue
		}
		configURI := dir.Join("tsconfig.json")
		if !m.fs.Has(configURI) && !m.fs.FileExists(configURI.Filename()) {
			configURI = dir.Join("jsconfig.json")
		}
		m.configs[dir] = New(m.fs, configURI, dir, m.factory, m.log)
	}
	if len(m.configs) == 0 && m.rootConfig == nil {
		m.rootConfig = New(m.fs, "", m.root, m.factory, m.log)
	}
}

// ensureConfigFilesContent ensures every tsconfig.json/jsconfig.json,
// package.json, and global declaration file has content in the IMFS
// (spec.md §4.7 "ensureModuleStructure").
func (m *Manager) ensureConfigFilesContent(ctx context.Context) error {
	all, err := m.fs.ReadDirectory(m.root.Filename(), nil, nil, []string{"**/tsconfig.json", "**/jsconfig.json", "**/package.json", "**/*.d.ts"})
	if err != nil {
		return err
	}
	for _, f := range all {
		if err := m.updater.Ensure(ctx, uri.FromPath(f, false)); err != nil {
			m.log.Debug("failed to ensure config file", "file", f, "error", err)
		}
	}
	return nil
}

// EnsureModuleStructure ensures remote structure, the content of every
// config/package/global-decl file, (re)creates configurations, then resets
// every configuration and invalidates the referenced-files cache
// (spec.md §4.7). Single-flight.
func (m *Manager) EnsureModuleStructure(ctx context.Context) error {
	_, err, _ := m.structureSF.Do("structure", func() (interface{}, error) {
		if err := m.updater.EnsureStructure(ctx); err != nil {
			return nil, err
		}
		if err := m.ensureConfigFilesContent(ctx); err != nil {
			return nil, err
		}
		m.createConfigurations()
		for _, cfg := range m.AllConfigurations() {
			cfg.Reset()
		}
		m.resolver.InvalidateReferencedFiles("")
		return nil, nil
	})
	if err != nil {
		m.structureSF.Forget("structure")
	}
	return err
}

// EnsureFilesForWorkspaceSymbol ensures structure, then every JS/TS/config/
// package file outside node_modules, then (re)creates configurations
// (spec.md §4.7). Single-flight; the memo is dropped on failure.
func (m *Manager) EnsureFilesForWorkspaceSymbol(ctx context.Context) error {
	_, err, _ := m.symbolSF.Do("symbol", func() (interface{}, error) {
		if err := m.updater.EnsureStructure(ctx); err != nil {
			return nil, err
		}
		all, rerr := m.fs.ReadDirectory(m.root.Filename(), nil, []string{"**/node_modules/**"}, []string{"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/tsconfig.json", "**/jsconfig.json", "**/package.json"})
		if rerr != nil {
			return nil, rerr
		}
		for _, f := range all {
			if err := m.updater.Ensure(ctx, uri.FromPath(f, false)); err != nil {
				m.log.Debug("failed to ensure workspace-symbol file", "file", f, "error", err)
			}
		}
		m.createConfigurations()
		for _, cfg := range m.AllConfigurations() {
			if err := cfg.Init(); err != nil {
				m.log.Debug("failed to init configuration", "root", cfg.RootURI(), "error", err)
				continue
			}
			if err := cfg.EnsureBasicFiles(); err != nil {
				m.log.Debug("failed to ensure basic files", "root", cfg.RootURI(), "error", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		m.symbolSF.Forget("symbol")
	}
	return err
}

// EnsureAllFiles ensures every JS/TS file including dependencies across
// every configuration (spec.md §4.7). Single-flight.
func (m *Manager) EnsureAllFiles(ctx context.Context) error {
	_, err, _ := m.allFilesSF.Do("all", func() (interface{}, error) {
		if err := m.EnsureFilesForWorkspaceSymbol(ctx); err != nil {
			return nil, err
		}
		all, rerr := m.fs.ReadDirectory(m.root.Filename(), nil, nil, []string{"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.d.ts"})
		if rerr != nil {
			return nil, rerr
		}
		for _, f := range all {
			if err := m.updater.Ensure(ctx, uri.FromPath(f, false)); err != nil {
				m.log.Debug("failed to ensure file", "file", f, "error", err)
			}
		}
		for _, cfg := range m.AllConfigurations() {
			if err := cfg.Init(); err != nil {
				m.log.Debug("failed to init configuration", "root", cfg.RootURI(), "error", err)
				continue
			}
			if err := cfg.EnsureAllFiles(); err != nil {
				m.log.Debug("failed to ensure all files", "root", cfg.RootURI(), "error", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		m.allFilesSF.Forget("all")
	}
	return err
}

// EnsureFilesForReferences implements spec.md §4.7's dependency/project
// split: references inside node_modules only need the workspace-symbol
// scope, references to project code need every file.
func (m *Manager) EnsureFilesForReferences(ctx context.Context, u uri.URI) error {
	if strings.Contains(string(u), "/node_modules/") {
		return m.EnsureFilesForWorkspaceSymbol(ctx)
	}
	return m.EnsureAllFiles(ctx)
}

// EnsureHoverScope ensures enough of the owning configuration is ready to
// answer hover/definition/completion/documentSymbol requests for u.
func (m *Manager) EnsureHoverScope(ctx context.Context, u uri.URI) (*Configuration, error) {
	if err := m.updater.Ensure(ctx, u); err != nil {
		return nil, err
	}
	cfg, err := m.GetConfiguration(u)
	if err != nil {
		return nil, err
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureBasicFiles(); err != nil {
		return nil, err
	}
	cfg.AddFile(u.Filename())
	if err := m.resolver.EnsureReferencedFiles(ctx, m.updater, u, 0); err != nil {
		m.log.Debug("failed to ensure referenced files", "uri", u, "error", err)
	}
	return cfg, nil
}

// DidOpen writes text to the overlay, bumps the file version, ensures the
// owning configuration is initialized, and bumps its project version
// (spec.md §4.7).
func (m *Manager) DidOpen(ctx context.Context, u uri.URI, text string) error {
	m.fs.DidOpen(u, text)
	cfg, err := m.ensureAndSync(ctx, u)
	if err != nil {
		return err
	}
	cfg.AddFile(u.Filename())
	return nil
}

// DidChange applies incremental content changes, bumps the file version,
// and resyncs the owning configuration's backend.
func (m *Manager) DidChange(ctx context.Context, u uri.URI, changes []protocol.TextDocumentContentChangeEvent) error {
	if err := m.fs.DidChange(ctx, u, changes); err != nil {
		return err
	}
	cfg, err := m.GetConfiguration(u)
	if err != nil {
		return err
	}
	cfg.IncFileVersion(u.Filename())
	m.resolver.InvalidateReferencedFiles(u)
	return nil
}

// DidSave promotes the overlay for u into the durable file entry.
func (m *Manager) DidSave(u uri.URI) {
	m.fs.DidSave(u)
}

// DidClose drops the overlay entry for u, increments its version, and
// resyncs.
func (m *Manager) DidClose(u uri.URI) error {
	m.fs.DidClose(u)
	cfg, err := m.GetConfiguration(u)
	if err != nil {
		return err
	}
	cfg.IncFileVersion(u.Filename())
	return nil
}

func (m *Manager) ensureAndSync(ctx context.Context, u uri.URI) (*Configuration, error) {
	cfg, err := m.GetConfiguration(u)
	if err != nil {
		return nil, err
	}
	if err := cfg.Init(); err != nil {
		return nil, err
	}
	cfg.IncFileVersion(u.Filename())
	return cfg, nil
}
