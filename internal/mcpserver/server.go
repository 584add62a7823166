package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/personagen/internal/config"
	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/pipeline"
)

// Server is the MCP server for persona generation.
type Server struct {
	settings config.Settings
	mcp      *server.MCPServer
	handlers *Handlers
	tasks    *TaskManager
	log      *slog.Logger
}

// New creates and configures the MCP server. baseCtx should be cancelled
// on SIGTERM so background generations stop.
func New(ctx context.Context, settings config.Settings, version string, logger *slog.Logger) (*Server, error) {
	awsCfg, err := config.AWSConfig(ctx, settings.AWSRegion)
	if err != nil {
		return nil, err
	}

	// Fetch secrets if running in AWS
	if settings.SecretPrefix != "" {
		settings.LoadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), logger)
	}

	contracts, err := contract.NewCache(contract.Loader{S3: s3.NewFromConfig(awsCfg)}, settings.CacheSize, settings.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create contract cache: %w", err)
	}
	// Fail fast on a broken default contract source.
	if _, err := contracts.Get(ctx, settings.Contract); err != nil {
		return nil, fmt.Errorf("load contract %s: %w", settings.Contract, err)
	}

	return NewWithDeps(ctx, settings, version, contracts, pipeline.Options{
		Model:    settings.Model,
		Keys:     settings.Keys,
		AWS:      &awsCfg,
		Deadline: settings.Deadline,
	}, logger)
}

// NewWithDeps wires the server around an existing contract cache and
// pipeline defaults. Callers select contracts by name only: the settings
// contract, the embedded "default", or a file under settings.ContractDir.
func NewWithDeps(ctx context.Context, settings config.Settings, version string, contracts *contract.Cache, base pipeline.Options, logger *slog.Logger) (*Server, error) {
	catalog := contract.NewCatalog(contracts, settings.Contract, settings.ContractDir)
	tasks, err := NewTaskManager(ctx, catalog, base, settings.MaxTasks, 0, logger)
	if err != nil {
		return nil, err
	}
	handlers := NewHandlers(tasks, catalog, logger)

	mcpServer := server.NewMCPServer(
		"personagen",
		version,
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleGeneratePersona)
	mcpServer.AddTool(tools[1], handlers.HandleGetPersona)
	mcpServer.AddTool(tools[2], handlers.HandleCancelPersona)
	mcpServer.AddTool(tools[3], handlers.HandleValidatePersona)
	mcpServer.AddTool(tools[4], handlers.HandleShowContract)

	return &Server{
		settings: settings,
		mcp:      mcpServer,
		handlers: handlers,
		tasks:    tasks,
		log:      logger,
	}, nil
}

// Running reports in-flight generations, for shutdown logging.
func (s *Server) Running() int {
	return s.tasks.Running()
}

// Start runs the HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.settings.Port)
	s.log.Info("Starting MCP server", "addr", addr)

	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)
	return httpServer.Start(addr)
}
