package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hybridsearch/codesearch/internal/config"
	"github.com/hybridsearch/codesearch/internal/logging"
	"github.com/hybridsearch/codesearch/internal/mcpserver"
)

type mcpOptions struct {
	datasetsRoot string
	embedderOptions
}

func newMCPCmd() *cobra.Command {
	var opts mcpOptions

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the code_search/evaluate tools over MCP stdio transport",
		Long: `mcp exposes the hybrid retrieval engine and evaluation pipeline as
MCP tools ("code_search", "evaluate") over stdio, for AI clients (Claude Code,
Cursor) that speak the Model Context Protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetsRoot, "datasets", "", "Root directory containing evaluation dataset subdirectories")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use the static hash-based embedder (must match the embedder used at index time)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: service, static (empty = service)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (empty = provider default)")

	return cmd
}

func runMCP(ctx context.Context, opts mcpOptions) error {
	// Stdout carries the JSON-RPC stream; route all logging to the log
	// file so nothing corrupts the protocol.
	logCleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("setup MCP logging: %w", err)
	}
	defer logCleanup()

	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	if found, ferr := config.FindProjectRoot(root); ferr == nil {
		root = found
	}
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, embedder, cleanup, err := openRetrievalEngine(ctx, root, cfg, opts.embedderOptions)
	if err != nil {
		return err
	}
	defer embedder.Close()
	defer cleanup()

	datasetsRoot := opts.datasetsRoot
	if datasetsRoot == "" {
		datasetsRoot = root
	}

	srv := mcpserver.New(engine, datasetsRoot)
	return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
}
