package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanforge/sigscan/pkg/serve"
)

var (
	serveRulesPath    string
	serveManifestPath string
	serveCompiled     bool
	serveTimeout      time.Duration
	serveWatch        bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a streaming scanning server",
	Long: `Run sigscan as a long-lived streaming server that accepts scan requests
via stdin and writes results to stdout using NDJSON format.

The process compiles its ruleset once at startup and serves requests until
stdin closes or SIGTERM is received. With --watch, edits to the rule
source reload the ruleset without interrupting in-flight scans.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRulesPath, "rules", "", "Path to rule source file or directory")
	serveCmd.Flags().StringVar(&serveManifestPath, "manifest", "", "Path to ruleset manifest")
	serveCmd.Flags().BoolVar(&serveCompiled, "compiled", false, "Treat --rules as a precompiled ruleset")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 60*time.Second, "Per-scan matching timeout")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the ruleset when the rule source changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	scanner, err := newScanner(serveRulesPath, serveManifestPath, serveCompiled, serveTimeout, serveWatch)
	if err != nil {
		return err
	}
	defer scanner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	srv := serve.NewServer(scanner.Service(), cmd.InOrStdin(), cmd.OutOrStdout())
	return srv.Run(ctx)
}
