// Package cli implements the suechef CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/config"
	"github.com/medelman17/suechef/internal/embedding"
	"github.com/medelman17/suechef/internal/legal"
	"github.com/medelman17/suechef/internal/logging"
	"github.com/medelman17/suechef/internal/params"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "suechef",
	Short: "Legal research memory across relational, vector and graph stores",
	Long: "Record timeline events and case-law snippets once and search them by keyword, meaning and " +
		"knowledge-graph relationships. Runs as a CLI or as an MCP server.",
	Version: Version,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $SUECHEF_CONFIG or ~/.suechef/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("SUECHEF_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".suechef", "config.yaml")
}

// app bundles everything a command needs.
type app struct {
	cfg *config.Config
	log *zap.Logger
	m   *backend.Manager
	svc *legal.Service
}

func openApp() (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
		Dims:     cfg.Embedding.Dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	m := backend.New(cfg, emb, backend.DefaultOpeners(cfg, log), log)
	return &app{
		cfg: cfg,
		log: log,
		m:   m,
		svc: legal.NewService(m, cfg.Discovery, log),
	}, nil
}

func (a *app) Close() {
	if err := a.m.Close(context.Background()); err != nil {
		a.log.Warn("close backends", zap.Error(err))
	}
	_ = a.log.Sync()
}

func mustOpenApp() *app {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	return a
}

// printResult writes the response envelope and exits non-zero on error.
func printResult(data any, message string, err error) {
	resp := legal.Respond(data, message, err)
	if formatFlag == "text" {
		printText(resp)
	} else {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(b))
	}
	if resp.Status == legal.StatusError {
		os.Exit(1)
	}
}

func printText(resp legal.Response) {
	if resp.Status == legal.StatusError {
		fmt.Fprintf(os.Stderr, "error (%s): %s\n", resp.ErrorType, resp.Message)
		return
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if resp.Data != nil {
		b, _ := json.MarshalIndent(resp.Data, "", "  ")
		fmt.Println(string(b))
	}
}

// textArg takes text from the positional args or, failing that, piped stdin.
func textArg(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}

// optString returns the flag value only when the user set it.
func optString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// optList returns the comma-separated flag as a list only when the user set it.
// An empty value clears the list.
func optList(cmd *cobra.Command, name string) *[]string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	list := params.SplitCSV(v)
	if list == nil {
		list = []string{}
	}
	return &list
}

func csvFlag(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetString(name)
	return params.SplitCSV(v)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
