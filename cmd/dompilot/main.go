// CLAUDE:SUMMARY Entry point for the dompilot agent-browser bridge — MCP stdio server or chi HTTP bridge over one Pilot.
// Command dompilot exposes a driven browser page to agents.
//
// Usage:
//
//	dompilot -mcp                          # serve MCP tools over stdio
//	dompilot -http :8099                   # serve the HTTP bridge
//	dompilot -config dompilot.yaml -mcp    # with a YAML config
//	dompilot -url https://example.com      # snapshot one page and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/dompilot"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to dompilot.yaml config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio")
	httpAddr := flag.String("http", "", "serve the HTTP bridge on this address (e.g. :8099)")
	singleURL := flag.String("url", "", "snapshot a single URL to stdout and exit")
	remoteURL := flag.String("remote", "", "attach to a running browser at this DevTools URL")
	headless := flag.Bool("headless", true, "launch the browser headless")
	trailPath := flag.String("trail", "", "record an operation trail to this SQLite file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// MCP owns stdout in stdio mode; logs always go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *remoteURL, *httpAddr, *trailPath, *mcpMode, *headless); err != nil {
		logger.Error("dompilot: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, remoteURL, httpAddr, trailPath string, mcpMode, headless bool) error {
	cfg, err := dompilot.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if remoteURL != "" {
		cfg.Browser.RemoteURL = remoteURL
	}
	if configPath == "" {
		cfg.Browser.Headless = headless
	}
	if trailPath != "" {
		cfg.TrailPath = trailPath
	}

	pilot := dompilot.New(cfg, logger)
	defer pilot.Close(context.Background())

	switch {
	case singleURL != "":
		return runSingle(ctx, pilot, singleURL)
	case mcpMode:
		return runMCP(ctx, logger, pilot)
	case httpAddr != "":
		return runHTTP(ctx, logger, pilot, httpAddr)
	}

	fmt.Fprintln(os.Stderr, "usage: dompilot -mcp | -http <addr> | -url <url>")
	os.Exit(1)
	return nil
}

// runSingle navigates once, prints a role snapshot, and exits. Handy for
// checking what a page looks like to an agent.
func runSingle(ctx context.Context, pilot *dompilot.Pilot, url string) error {
	if _, err := pilot.Navigate(ctx, url); err != nil {
		return err
	}
	snap, err := pilot.Snapshot(ctx, dompilot.SnapshotOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("# %s — %s (%d refs, source %s)\n\n", snap.URL, snap.Title, snap.Refs, snap.Source)
	fmt.Println(snap.Body)
	return nil
}

func runMCP(ctx context.Context, logger *slog.Logger, pilot *dompilot.Pilot) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "dompilot",
		Version: version,
	}, nil)
	pilot.RegisterMCP(srv)

	logger.Info("dompilot: MCP server on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
