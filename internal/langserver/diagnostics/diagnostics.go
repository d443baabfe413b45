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

// Package diagnostics publishes backend diagnostics to the LSP client,
// grouped by file, clearing markers for files that have resolved
// (spec.md §4.9).
package diagnostics

import (
	"context"
	"sort"
	"strings"
	"sync"

	lsp "github.com/sourcegraph/go-lsp"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
)

const errPublishDiagnostics = "failed to publish diagnostics"

// Client is the external collaborator the publisher notifies (spec.md §1
// "LanguageClient"). *jsonrpc2.Conn satisfies this with its Notify method.
type Client interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

// TextSource looks up the current text of a file, used to translate a
// diagnostic's byte offsets into an LSP line/character range.
type TextSource interface {
	ReadFile(path string) (string, error)
}

// Publisher tracks which files currently have non-empty diagnostics and
// clears them when they resolve (spec.md §4.9).
type Publisher struct {
	mu           sync.Mutex
	problemFiles map[string]struct{}

	client Client
	text   TextSource
	log    logging.Logger
}

// New constructs a Publisher that notifies client, resolving diagnostic
// ranges against text.
func New(client Client, text TextSource, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Publisher{
		problemFiles: make(map[string]struct{}),
		client:       client,
		text:         text,
		log:          log,
	}
}

// Publish groups diags by file, emits an empty publish for every file that
// was previously problematic and is now absent, then publishes every
// grouped entry, re-adding non-empty files to the problem set (spec.md
// §4.9).
func (p *Publisher) Publish(ctx context.Context, diags []backend.Diagnostic) {
	grouped := map[string][]backend.Diagnostic{}
	for _, d := range diags {
		if d.File == "" {
			continue
		}
		grouped[d.File] = append(grouped[d.File], d)
	}

	p.mu.Lock()
	stale := p.problemFiles
	p.problemFiles = make(map[string]struct{})
	p.mu.Unlock()

	for file := range stale {
		if _, ok := grouped[file]; !ok {
			grouped[file] = nil
		}
	}

	files := make([]string, 0, len(grouped))
	for f := range grouped {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		entries := grouped[file]
		p.publishOne(ctx, file, entries)
		if len(entries) > 0 {
			p.mu.Lock()
			p.problemFiles[file] = struct{}{}
			p.mu.Unlock()
		}
	}
}

func (p *Publisher) publishOne(ctx context.Context, file string, entries []backend.Diagnostic) {
	text, err := p.text.ReadFile(file)
	if err != nil {
		// the file has been removed from the IMFS; still clear markers
		// with a byte-offset-only range, since no text is left to map
		// offsets against.
		text = ""
	}
	translated := make([]lsp.Diagnostic, 0, len(entries))
	for _, e := range entries {
		translated = append(translated, translate(e, text))
	}
	params := &lsp.PublishDiagnosticsParams{
		URI:         lsp.DocumentURI("file://" + file),
		Diagnostics: translated,
	}
	if err := p.client.Notify(ctx, "textDocument/publishDiagnostics", params); err != nil {
		p.log.Debug(errPublishDiagnostics, "error", errors.Wrap(err, "notify"), "uri", params.URI)
	}
}

// translate converts one backend diagnostic into its LSP wire shape
// (spec.md §4.9): range from text offsets, flattened message, mapped
// severity, constant source "ts".
func translate(d backend.Diagnostic, text string) lsp.Diagnostic {
	message := strings.ReplaceAll(d.MessageText, "\r\n", "\n")
	return lsp.Diagnostic{
		Range:    offsetRange(text, d.Start, d.Length),
		Message:  message,
		Severity: severityFor(d.Category),
		Code:     d.Code,
		Source:   "ts",
	}
}

func severityFor(cat backend.DiagnosticCategory) lsp.DiagnosticSeverity {
	switch cat {
	case backend.CategoryError:
		return lsp.Error
	case backend.CategoryWarning:
		return lsp.Warning
	default:
		return lsp.Information
	}
}

// offsetRange maps a [start, start+length) byte range in text to an LSP
// line/character range by counting newlines, the same approach the fake
// backend uses for its own spans.
func offsetRange(text string, start, length int) lsp.Range {
	return lsp.Range{
		Start: offsetToPosition(text, start),
		End:   offsetToPosition(text, start+length),
	}
}

func offsetToPosition(text string, offset int) lsp.Position {
	line, lastNL := 0, -1
	for i := 0; i < offset && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			lastNL = i
		}
	}
	return lsp.Position{Line: line, Character: offset - lastNL - 1}
}
