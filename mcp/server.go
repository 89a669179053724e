package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tieubaoca/memory-be/adapter"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server exposes the source adapters as MCP tools so external agents can
// search the same Drive, history, and chat archives the pipeline does.
type Server struct {
	registry *adapter.Registry
	ocr      adapter.OCRClient
	server   *mcp.Server
}

func NewServer(registry *adapter.Registry, ocr adapter.OCRClient) (*Server, error) {
	if registry == nil {
		return nil, errors.New("adapter registry is required")
	}

	impl := &mcp.Implementation{
		Name:    "memory-be",
		Version: Version,
	}

	s := &Server{
		registry: registry,
		ocr:      ocr,
		server:   mcp.NewServer(impl, nil),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts the MCP server over HTTP on the specified address.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
