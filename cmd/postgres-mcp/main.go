// Command postgres-mcp is an MCP stdio server exposing a single tool that
// executes SQL statements against a PostgreSQL database. The protocol runs
// over stdin/stdout; diagnostics go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgexec/postgres-mcp/pkg/config"
	"github.com/pgexec/postgres-mcp/pkg/logging"
	"github.com/pgexec/postgres-mcp/pkg/query"
	"github.com/pgexec/postgres-mcp/pkg/server"
	"github.com/pgexec/postgres-mcp/pkg/transport"
)

// Version is stamped at build time.
var Version = "1.0.0"

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "postgres-mcp",
	Short:         "MCP stdio server for executing SQL against PostgreSQL",
	Long:          `postgres-mcp speaks the Model Context Protocol over stdin/stdout and exposes one tool, query_database, that runs arbitrary SQL against the configured PostgreSQL database. Connection settings come from POSTGRES_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(os.Stderr, logging.NewTextFormatter())
	logger.SetLevel(logging.ParseLevel(logLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := query.New(cfg.DSN(), logger)
	defer func() {
		if err := executor.Close(context.Background()); err != nil {
			logger.Warn("closing database connection", logging.ErrorField(err))
		}
	}()

	registry, err := server.NewRegistry(server.QueryTool())
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	srv := server.New(transport.New(nil, nil), registry, executor,
		server.WithName("postgres-mcp"),
		server.WithVersion(Version),
		server.WithLogger(logger),
	)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Diagnostic log level (debug, info, warn, error)")
}
