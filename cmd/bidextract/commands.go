package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/spf13/cobra"
)

// exitError carries the process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

type rootOptions struct {
	configFile string
	envFile    string
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string) int {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	err := root.Execute()
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return config.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if failure.Is(err, failure.ConfigError) {
		return config.ExitConfig
	}
	// cobra usage errors: bad flags or arguments
	return config.ExitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Extract structured records from procurement documents",
		Long:          "bidextract reads bid invitation documents (PDF, Word, ODT, RTF, text), asks a language model for the header fields\nchunk by chunk and writes one record per document to an XLSX workbook and master_data.json.",
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file")
	pf.StringVar(&opts.envFile, "env-file", config.DotEnvFile, ".env file with credentials")
	pf.String("provider", "", "model provider (openai, gemini)")
	pf.String("endpoint", "", "OpenAI-compatible base URL")
	pf.String("model", "", "model name")
	pf.Int("max-tokens", 0, "max tokens per chunk")
	pf.Int("overlap", 0, "chunk overlap in tokens")
	pf.Int("retries", 0, "max attempts per model call")
	pf.Int("concurrency", 0, "documents processed in parallel")
	pf.String("schema", "", "extraction schema YAML file")
	pf.String("policy", "", "conflict policy (highest_confidence, earliest)")
	pf.String("cache-redis", "", "redis address for the completion cache")
	pf.String("output", "", "output directory")
	pf.String("log-level", "", "debug, info, warn, error")
	pf.String("log-format", "", "text or json")
	pf.String("metrics-addr", "", "serve /metrics and /healthz on this address")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newMCPCmd(opts), newSchemaCmd(opts))
	return root
}

func loadConfig(cmd *cobra.Command, opts *rootOptions, skipValidation bool) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile:     opts.configFile,
		EnvFile:        opts.envFile,
		Flags:          cmd.Flags(),
		SkipValidation: skipValidation,
	})
	if err != nil {
		return nil, withCode(config.ExitConfig, err)
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <path>...",
		Short: "Process documents and write the batch output",
		Long:  "Process the given files. Directories are expanded to the supported documents they contain.\nExit status: 0 all documents done, 1 at least one failed, 2 configuration or endpoint error.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, false)
			if err != nil {
				return err
			}
			logger_i.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runBatch(ctx, cfg, args, cmd.OutOrStdout())
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API: POST /runs, GET /status/{id}, /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, false)
			if err != nil {
				return err
			}
			logger_i.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serveAPI(ctx, cfg, listenAddr)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-addr", config.ServerListenAddr, "server listen address")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the extraction pipeline as an MCP tool over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, false)
			if err != nil {
				return err
			}
			// stdout is the MCP transport
			logger_i.InitWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serveMCP(ctx, cfg)
		},
	}
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the effective extraction schema as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, true)
			if err != nil {
				return err
			}
			data, err := cfg.Schema.YAML()
			if err != nil {
				return withCode(config.ExitFailed, err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
