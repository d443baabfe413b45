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

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/afero"
	"github.com/willabides/kongplete"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend/fake"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/handler"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

type cli struct {
	Verbose bool `name:"verbose" help:"Enable verbose logging."`

	Serve serveCmd `cmd:"" help:"Start the language server."`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
}

// serveCmd starts the server listening on a TCP port, or on stdio when
// --port is 0 (spec.md §6a).
type serveCmd struct {
	Port    int    `name:"port" default:"2089" help:"TCP port to listen on. 0 serves over stdio."`
	Cluster int    `name:"cluster" help:"Number of concurrent connections served at once. Defaults to the number of CPUs."`
	Strict  bool   `name:"strict" help:"Serve file content over the client's fs/readFile and fs/readDir instead of the local disk."`
	Trace   bool   `name:"trace" help:"Log every JSON-RPC request and response."`
	Logfile string `name:"logfile" help:"Write logs to this file instead of stderr."`
}

func (c *serveCmd) AfterApply() error {
	if c.Cluster <= 0 {
		c.Cluster = runtime.NumCPU()
	}
	return nil
}

func (c *serveCmd) Run(ctx context.Context, log logging.Logger) error {
	if c.Logfile != "" {
		f, err := os.OpenFile(c.Logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close() // nolint:errcheck
		log = logging.NewLogrLogger(newWriterLogger(f))
	}

	if c.Port == 0 {
		return c.serveConn(ctx, stdrwc{}, log)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.Port))
	if err != nil {
		return err
	}
	defer lis.Close() // nolint:errcheck
	log.Info("language server listening", "port", c.Port, "cluster", c.Cluster, "strict", c.Strict)

	// --cluster bounds how many connections are served concurrently; each
	// connection still serializes its own requests through jsonrpc2.
	sem := make(chan struct{}, c.Cluster)
	for {
		nc, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			if err := c.serveConn(ctx, nc, log); err != nil {
				log.Info("connection ended", "error", err)
			}
		}()
	}
}

// serveConn wires one jsonrpc2 connection end to end. In strict mode the
// RemoteFileSystem calls back over this same connection via fs/readFile and
// fs/readDir, which is why it is attached with SetConn after NewConn
// returns rather than passed in up front.
func (c *serveCmd) serveConn(ctx context.Context, rwc io.ReadWriteCloser, log logging.Logger) error {
	// The real type-checker backend is an embedder's concern (spec.md's
	// Non-goals: no embedded type checker/parser). fake.New stands in here
	// so this binary runs standalone; an embedder wires its own
	// backend.Factory through handler.WithBackendFactory instead.
	opts := []handler.Option{
		handler.WithLogger(log),
		handler.WithBackendFactory(func(host backend.Host) (backend.Backend, error) {
			return fake.New(host, resolveRelative), nil
		}),
	}

	var rpcFS *vfs.RPCFileSystem
	if c.Strict {
		rpcFS = vfs.NewRPCFileSystem()
		opts = append(opts, handler.WithRemoteFileSystem(rpcFS), handler.WithBackingFs(afero.NewMemMapFs()))
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts = append(opts, handler.WithRemoteFileSystem(vfs.NewLocalFileSystem(afero.NewOsFs(), cwd)), handler.WithBackingFs(afero.NewOsFs()))
	}

	h, err := handler.New(opts...)
	if err != nil {
		return err
	}

	var connOpts []jsonrpc2.ConnOpt
	if c.Trace {
		connOpts = append(connOpts, jsonrpc2.LogMessages(traceLogger{log}))
	}

	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, h, connOpts...)
	if rpcFS != nil {
		rpcFS.SetConn(conn)
	}
	<-conn.DisconnectNotify()
	return nil
}

// newWriterLogger builds a minimal logr.Logger over w, using go-logr/logr's
// own funcr formatter rather than pulling in a full logging backend the
// rest of this repository has no other use for.
func newWriterLogger(w io.Writer) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, funcr.Options{})
}

func main() {
	c := cli{}

	parser := kong.Must(&c,
		kong.Name("langserver"),
		kong.Description("A JavaScript/TypeScript language server."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}))

	kongplete.Complete(parser)

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	log := logging.NewNopLogger()
	if c.Verbose {
		log = logging.NewLogrLogger(newWriterLogger(os.Stderr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		defer cancel()
		<-sigCh
		kongCtx.Exit(1)
	}()

	kongCtx.BindTo(ctx, (*context.Context)(nil))
	kongCtx.Bind(log)
	kongCtx.FatalIfErrorf(kongCtx.Run())
}

// stdrwc adapts stdin/stdout to an io.ReadWriteCloser for stdio transport.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// resolveRelative resolves "./foo"/"../foo" import specifiers against
// fromFile's directory, the only shape the fake backend needs to follow a
// cross-file definition.
func resolveRelative(fromFile, specifier string) (string, bool) {
	if !strings.HasPrefix(specifier, ".") {
		return "", false
	}
	target := path.Clean(path.Join(path.Dir(fromFile), specifier))
	if !strings.HasSuffix(target, ".ts") && !strings.HasSuffix(target, ".tsx") {
		target += ".ts"
	}
	return target, true
}

// traceLogger adapts logging.Logger to jsonrpc2's tracing sink for --trace.
type traceLogger struct {
	log logging.Logger
}

func (t traceLogger) Printf(format string, v ...interface{}) {
	t.log.Debug(fmt.Sprintf(format, v...))
}
