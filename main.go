package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	configPath string
	dataDir    string
	verbose    bool
	message    string
)

var rootCmd = &cobra.Command{
	Use:           AppName,
	Short:         "Monsmatics - a daily journal assistant backed by Gemini",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal (default)",
	RunE:  runChat,
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Hold a voice conversation; Enter ends it",
	RunE:  runLive,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant as MCP tools over stdio",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", AppName, AppVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.monsmatics/config.json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.monsmatics)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	chatCmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	rootCmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	rootCmd.AddCommand(chatCmd, liveCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger logs to stderr; stdout carries the REPL or the MCP protocol.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// withApp loads the configuration, starts the app and runs fn until it returns or the process
// is interrupted.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) (err error) {
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := LoadConfig(configPath, logger)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, app.Close())
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, app)
}

func runChat(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		repl := NewREPL(app, cmd.InOrStdin(), cmd.OutOrStdout())
		if message != "" {
			repl.send(ctx, SendRequest{Text: message})
			return nil
		}
		return repl.Run(ctx)
	})
}

func runLive(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		NewREPL(app, cmd.InOrStdin(), cmd.OutOrStdout()).RunLive(ctx)
		return nil
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		return app.ServeMCP()
	})
}
