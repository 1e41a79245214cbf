package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/api"
	"github.com/yourusername/embed-archiver/api/handlers"
	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
)

const shutdownTimeout = 30 * time.Second

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "embed-archiver-server",
		Short: "Embed Archiver - archives media embedded in Discord channels",
		Long: `Walks the history of approved Discord channels, downloads the media of
every embed and keeps a ledger of archived messages.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	traverseCmd.Flags().String("channel", "", "Channel to traverse")
	traverseCmd.Flags().String("direction", string(domain.DirectionCatchUp), "Traversal direction (catch_up, backfill)")
	_ = traverseCmd.MarkFlagRequired("channel")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(traverseCmd)
	rootCmd.AddCommand(registerCommandsCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, queue consumers and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		return runServer(config)
	},
}

var traverseCmd = &cobra.Command{
	Use:   "traverse",
	Short: "Run one traversal invocation inline",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		channelID, _ := cmd.Flags().GetString("channel")
		directionName, _ := cmd.Flags().GetString("direction")
		direction, err := domain.ParseDirection(directionName)
		if err != nil {
			return err
		}
		if !config.Discord.IsApprovedChannel(channelID) {
			return fmt.Errorf("channel %s: %w", channelID, app.ErrChannelNotApproved)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := buildComponents(ctx, config)
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.engine.Traverse(ctx, domain.TraverseTask{ChannelID: channelID, Direction: direction})
		if err != nil {
			return err
		}

		fmt.Printf("Traversal of %s (%s) stopped: %s\n", result.ChannelID, result.Direction, result.Reason)
		fmt.Printf("  Requests:  %d\n", result.Requests)
		fmt.Printf("  Scanned:   %d\n", result.Scanned)
		fmt.Printf("  Emitted:   %d\n", result.Emitted)
		fmt.Printf("  Continued: %v\n", result.Continued)
		return nil
	},
}

var registerCommandsCmd = &cobra.Command{
	Use:   "register-commands",
	Short: "Create the global message commands of the Discord application",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if config.Discord.ApplicationID == "" {
			return errors.New("discord application id not configured")
		}

		session, err := discordgo.New("Bot " + config.Discord.Token)
		if err != nil {
			return fmt.Errorf("failed to create discord session: %w", err)
		}

		for _, command := range handlers.Commands() {
			created, err := session.ApplicationCommandCreate(config.Discord.ApplicationID, "", command)
			if err != nil {
				return fmt.Errorf("failed to create command %q: %w", command.Name, err)
			}
			fmt.Printf("Registered %q (id %s)\n", created.Name, created.ID)
		}
		return nil
	},
}

func runServer(config *domain.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildComponents(ctx, config)
	if err != nil {
		return err
	}
	defer c.Close()

	log := c.log
	log.Info("Starting embed archiver",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port))

	if config.Queue.AutoStartWorkers {
		if err := c.queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}
	if config.Queue.AutoStartScheduler {
		if err := c.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	routerConfig := api.RouterConfig{
		Archives:      c.lookup,
		Queue:         c.queueMgr,
		Gatherer:      c.registry,
		PublicBaseURL: config.Storage.PublicBaseURL,
		LogsDir:       config.Logging.LogsDir,
	}
	if config.Discord.PublicKey != "" {
		interactions, err := handlers.NewInteractionHandler(c.lookup, config.Discord.PublicKey, config.Storage.PublicBaseURL, c.logAdapter.General().Named("interactions"))
		if err != nil {
			return err
		}
		routerConfig.Interactions = interactions
	} else {
		log.Warn("Discord public key not configured, interactions endpoint disabled")
	}

	router := api.SetupRouter(routerConfig, c.logAdapter)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if c.scheduler.IsRunning() {
		if err := c.scheduler.Stop(); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	if c.queueMgr.IsRunning() {
		if err := c.queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	log.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
