package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sglre6355/sgrlink/internal/bot"
)

// Version is set at build time via ldflags:
// go build -ldflags "-X github.com/sglre6355/sgrlink/internal/cli.Version=1.0.0" ./cmd/sgrlink
var Version = "dev"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and Lavalink and serve commands",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	slog.Info("starting sgrlink", "version", Version)

	// Load configuration
	cfg, err := bot.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	// Create and configure bot
	b := bot.NewBot(cfg)
	b.LoadModules()

	// Start bot
	if err := b.Start(); err != nil {
		slog.Error("failed to start bot", "error", err)
		return err
	}

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("received termination signal, shutting down")
	if err := b.Stop(); err != nil {
		slog.Error("failed to shutdown", "error", err)
		return err
	}

	slog.Info("completed bot shutdown")
	return nil
}
