package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"phobos.org.uk/sajtmaskin/internal/client"
)

var version = "dev"

var serverURL string

var rootCmd = &cobra.Command{
	Use:           "sm-cli",
	Short:         "Inspect and drive generation streams",
	Long:          "Interprets generation stream chunks locally or through a running sm-server.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultURL := os.Getenv("SAJTMASKIN_URL")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:9100"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "sm-server base URL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(serverURL)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
