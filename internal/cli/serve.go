package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long:  "Expose every operation as an MCP tool over stdio or streamable HTTP.",
		Run:   runServe,
	}

	cmd.Flags().String("transport", "", "stdio or http (default: from config)")
	cmd.Flags().String("addr", "", "HTTP listen address (default: from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	transport := a.cfg.MCP.Transport
	if v, _ := cmd.Flags().GetString("transport"); v != "" {
		transport = v
	}
	addr := a.cfg.MCP.Addr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Warm up; EnsureReady retries on each request.
	if err := a.m.Initialize(ctx); err != nil {
		a.log.Warn("backends not ready at startup", zap.Error(err))
	}

	srv := server.New(a.svc, Version)

	switch transport {
	case "stdio":
		a.log.Info("mcp server starting", zap.String("transport", "stdio"))
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			exitErr("serve", err)
		}
	case "http":
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		hs := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = hs.Shutdown(shutdownCtx)
		}()
		a.log.Info("mcp server listening", zap.String("transport", "http"), zap.String("addr", addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			exitErr("serve", err)
		}
	default:
		exitErr("serve", fmt.Errorf("unknown transport %q (use stdio or http)", transport))
	}
}
