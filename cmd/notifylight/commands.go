package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-notifylight/internal/present/terminal"
	"github.com/tinywideclouds/go-notifylight/internal/remote"
	"github.com/tinywideclouds/go-notifylight/notifylight"
	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
)

const defaultWatchInterval = 30 * time.Second

// HealthCmd returns the health command
func HealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			sdk, err := notifylight.New(*cfg, inapp.PresenterFunc(func(inapp.Message, inapp.Responder) {}), logger)
			if err != nil {
				return err
			}

			health, err := sdk.Health(cmd.Context())
			if err != nil {
				fmt.Printf("%s %s\n", color.New(color.FgRed).Sprint("DOWN"), cfg.ServerURL)
				return err
			}
			fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint(health.Status), cfg.ServerURL)
			if health.Version != "" {
				fmt.Printf("  version:   %s\n", health.Version)
			}
			if health.Timestamp != "" {
				fmt.Printf("  timestamp: %s\n", health.Timestamp)
			}
			return nil
		},
	}
}

// MessagesCmd returns the messages command
func MessagesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "List the user's unread in-app messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := remote.NewClient(remote.Config{
				ServerURL: cfg.ServerURL,
				APIKey:    cfg.APIKey,
				Timeout:   cfg.HTTPTimeout,
			}, nil, logger)
			if err != nil {
				return err
			}

			msgs, err := client.FetchMessages(cmd.Context(), cfg.UserID)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Printf("No unread messages for %s\n", cfg.UserID)
				return nil
			}

			fmt.Printf("%d unread message(s) for %s\n\n", len(msgs), cfg.UserID)
			for _, m := range msgs {
				created := "-"
				if !m.CreatedAt.IsZero() {
					created = m.CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Printf("  %s  %s  %s\n", color.New(color.FgCyan).Sprint(m.ID), created, m.Title)
				if m.Body != "" {
					fmt.Printf("      %s\n", m.Body)
				}
				for _, a := range m.Actions {
					fmt.Printf("      - %s (%s)\n", a.Title, a.Style)
				}
			}
			return nil
		},
	}
}

// RegisterCmd returns the register command
func RegisterCmd(flags *globalFlags) *cobra.Command {
	var token, platform string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a push token for the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			sdk, err := notifylight.New(*cfg, inapp.PresenterFunc(func(inapp.Message, inapp.Responder) {}), logger)
			if err != nil {
				return err
			}
			if err := sdk.SetDeviceToken(cmd.Context(), token, platform); err != nil {
				return err
			}
			fmt.Printf("Registered %s device for %s\n", platform, cfg.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "device push token")
	cmd.Flags().StringVar(&platform, "platform", "", "ios or android")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

// WatchCmd returns the watch command
func WatchCmd(flags *globalFlags) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for messages and show them until interrupted",
		Long: `Poll the server for in-app messages and show them one at a time.
Type an action number and press enter to choose it, or press enter to dismiss.
Ctrl-C stops watching.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.AutoCheckInterval = interval
			}
			if cfg.AutoCheckInterval <= 0 {
				cfg.AutoCheckInterval = defaultWatchInterval
			}

			presenter := terminal.New(os.Stdin, os.Stdout, logger)
			sdk, err := notifylight.New(*cfg, presenter, logger)
			if err != nil {
				return err
			}
			sdk.Subscribe(notifylight.EventMessagesFetched, func(e notifylight.Event) error {
				if e.Count > 0 {
					logger.Info("New messages queued", "count", e.Count)
				}
				return nil
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sdk.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("Watching messages for %s every %s (Ctrl-C to stop)\n", cfg.UserID, cfg.AutoCheckInterval)

			select {
			case <-ctx.Done():
			case <-presenter.Done():
			}

			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sdk.Cleanup(cleanupCtx)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default 30s or the configured one)")
	return cmd
}
