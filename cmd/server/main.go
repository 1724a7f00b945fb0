package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/schoolfeedback/feedbackd/internal/services"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "feedbackd",
		Short: "School feedback processor",
		Long: `School feedback processor

Receives feedback form submissions, labels them with a language model and
forwards them by e-mail. Runs the HTTP server when no subcommand is given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"),
		"path to the yaml config file (env CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(classifyCmd(&configPath))
	rootCmd.AddCommand(configCmd(&configPath))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func classifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify feedback text without sending mail",
		Long: `Classify feedback text without sending mail.

The text is taken from the argument, or read from stdin when no argument is
given. Prints the classification and the subject line that would be used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			classifier, err := services.NewClassifier(&cfg.LLM)
			if err != nil {
				return err
			}
			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runClassify(cmd.Context(), classifier, text, cfg.Log.ModelOutput, cmd.OutOrStdout())
		},
	}
}

func configCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().Marshal()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedbackd %s\n", version)
		},
	}
}

func loadConfig(path string, logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitWithWriter(cfg.Log.Level, logOut)
	return cfg, nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

type classifyOutput struct {
	Classification services.Classification `json:"classification"`
	Fallback       bool                    `json:"fallback"`
	Violations     []string                `json:"violations,omitempty"`
	Subject        string                  `json:"subject"`
}

func runClassify(ctx context.Context, classifier services.Classifier, text string, logOutput bool, w io.Writer) error {
	outcome, err := services.ClassifyFeedback(ctx, classifier, text, logOutput)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(classifyOutput{
		Classification: outcome.Classification,
		Fallback:       outcome.Fallback,
		Violations:     outcome.Violations,
		Subject:        outcome.Subject,
	})
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath, os.Stdout)
	if err != nil {
		return err
	}

	app, err := bootstrap(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("[Server] Startup failed")
		return err
	}
	defer app.shutdown()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	registerRoutes(r, app)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("[Server] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("[Server] Stopped with error")
		return err
	}
	logger.Info().Msg("[Server] Stopped")
	return nil
}
