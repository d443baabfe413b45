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

package vfs

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

const (
	// maxInFlightFetches bounds concurrent remote fetches (spec.md §4.2,
	// §5 "Backpressure").
	maxInFlightFetches = 100

	errFetchFailed = "failed to fetch file from remote file system"
)

// Updater coalesces remote fetches into the IMFS, enforcing single-flight
// per URI and bounding overall concurrency.
//
// ensure()'s single-flight semantics are implemented with
// golang.org/x/sync/singleflight, the same module the teacher's own go.mod
// carries (via golang.org/x/sync) but never exercises directly — the
// "enrich from the rest of the pack" case for a dependency the teacher
// ships but leaves unused.
type Updater struct {
	fs     *FS
	remote RemoteFileSystem
	log    logging.Logger

	sem *semaphore.Weighted
	sf  singleflight.Group

	mu               sync.Mutex
	structureFetched bool
	structureSF      singleflight.Group
}

// NewUpdater constructs an Updater over fs, pulling content from remote.
func NewUpdater(fs *FS, remote RemoteFileSystem, log logging.Logger) *Updater {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Updater{
		fs:     fs,
		remote: remote,
		log:    log,
		sem:    semaphore.NewWeighted(maxInFlightFetches),
	}
}

// Ensure guarantees uri has content in the IMFS, fetching it from the
// remote file system if necessary. Concurrent callers for the same uri
// observe a single underlying fetch (spec.md invariant 3); on failure the
// cached handle is discarded so the next call retries (spec.md Design Note,
// fixed "invalidate on error, retain on success" policy).
func (u *Updater) Ensure(ctx context.Context, target uri.URI) error {
	if u.fs.Has(target) {
		if _, err := u.fs.GetContent(target); err == nil {
			return nil
		}
	}
	_, err, _ := u.sf.Do(string(target), func() (interface{}, error) {
		if err := u.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer u.sem.Release(1)

		body, ferr := u.remote.ReadFile(ctx, target)
		if ferr != nil {
			u.log.Debug(errFetchFailed, "uri", target, "error", ferr)
			return nil, errors.Wrap(ferr, errFetchFailed)
		}
		u.fs.Add(target, &body)
		return nil, nil
	})
	if err != nil {
		// drop the cached failure so the next Ensure retries.
		u.sf.Forget(string(target))
		return err
	}
	return nil
}

// EnsureStructure enumerates the remote workspace's file list exactly
// once (until Invalidated), inserting each URI into the IMFS with no
// content (metadata-only registration).
func (u *Updater) EnsureStructure(ctx context.Context) error {
	_, err, _ := u.structureSF.Do("structure", func() (interface{}, error) {
		u.mu.Lock()
		already := u.structureFetched
		u.mu.Unlock()
		if already {
			return nil, nil
		}
		uris, lerr := u.remote.ListWorkspaceFiles(ctx)
		if lerr != nil {
			return nil, errors.Wrap(lerr, "failed to list remote workspace files")
		}
		for _, uu := range uris {
			u.fs.Add(uu, nil)
		}
		u.mu.Lock()
		u.structureFetched = true
		u.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		u.structureSF.Forget("structure")
	}
	return err
}

// Invalidate drops any cached fetch completion for uri so the next Ensure
// call re-fetches it.
func (u *Updater) Invalidate(target uri.URI) {
	u.sf.Forget(string(target))
	// Ensure skips the fetch while the entry holds content, so drop it.
	u.fs.mu.Lock()
	if e, ok := u.fs.entries[target]; ok {
		e.Content = nil
	}
	u.fs.mu.Unlock()
}

// InvalidateStructure forces the next EnsureStructure call to re-enumerate
// the remote workspace.
func (u *Updater) InvalidateStructure() {
	u.mu.Lock()
	u.structureFetched = false
	u.mu.Unlock()
	u.structureSF.Forget("structure")
}
