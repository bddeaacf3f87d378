package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-enhance-mcp/internal/config"
	"github.com/ironsheep/image-enhance-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := ""

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v", "version":
			fmt.Printf("image-enhance-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--config", "-c":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a file path")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s (see --help)\n", args[i])
			os.Exit(2)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image-enhance-mcp: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logger := cfg.Log.NewLogger(os.Stderr)
	logger.WithFields(logrus.Fields{
		"version":  Version,
		"built":    BuildTime,
		"commit":   GitCommit,
		"base_url": cfg.BaseURL,
	}).Debug("starting image enhance MCP server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Version = Version
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("server error")
	}
}

func printHelp() {
	fmt.Println("image-enhance-mcp - MCP server for image enhancement")
	fmt.Println()
	fmt.Println("Usage: image-enhance-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c FILE    Read settings from a YAML file")
	fmt.Println("  --version, -v        Print version information")
	fmt.Println("  --help, -h           Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  IMAGE_ENHANCE_CONFIG=FILE            Config file when --config is not given")
	fmt.Println("  IMAGE_ENHANCE_BASE_URL=URL           Image server root (default http://localhost:5000)")
	fmt.Println("  IMAGE_ENHANCE_LOG_LEVEL=debug        Log level: debug, info, warn, error")
	fmt.Println("  IMAGE_ENHANCE_POLL_INTERVAL=5s       Batch status polling period")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
