package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/52hzxgfy/chatbot/chat"
	"github.com/52hzxgfy/chatbot/internal/profile"
	"github.com/52hzxgfy/chatbot/internal/version"
	"github.com/52hzxgfy/chatbot/server"
)

var rootCmd = &cobra.Command{
	Use:   "chatbot",
	Short: `A multi-provider LLM chat service: pooled per-conversation sessions, multimodal file handling, and conversation history reconciliation.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory; absence is fine.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:           viper.GetString("mode"),
			Addr:           viper.GetString("addr"),
			Port:           viper.GetInt("port"),
			MetricsEnabled: viper.GetBool("metrics"),
			Version:        version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		chatService := chat.NewService(chat.Config{})

		s, err := server.NewServer(ctx, instanceProfile, chatService)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most supervisors.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28084)
	viper.SetDefault("metrics", true)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28084, "port of server")
	rootCmd.PersistentFlags().Bool("metrics", true, "expose the /metrics endpoint")

	for _, flag := range []string{"mode", "addr", "port", "metrics"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("chatbot")
	viper.AutomaticEnv()
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("chatbot %s started, mode=%s, listening on %s\n", p.Version, p.Mode, p.ListenAddr())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
