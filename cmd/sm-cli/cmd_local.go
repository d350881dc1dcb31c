package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"phobos.org.uk/sajtmaskin/internal/logging"
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/stream"
)

func init() {
	interpretCmd.Flags().StringP("event", "e", "", "SSE event name of the chunk")
	interpretCmd.Flags().Bool("remote", false, "Interpret on the server instead of locally")

	replayCmd.Flags().StringP("event", "e", "", "Default event name for frames without one")
	replayCmd.Flags().Bool("submit", false, "Submit the stream to the server instead of replaying locally")
	replayCmd.Flags().String("log-level", "warn", "Log level for chunk logging (debug, info, warn, error)")

	rootCmd.AddCommand(interpretCmd, replayCmd)
}

var interpretCmd = &cobra.Command{
	Use:   "interpret <data>",
	Short: "Interpret one raw chunk and print the extracted facts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, _ := cmd.Flags().GetString("event")
		remote, _ := cmd.Flags().GetBool("remote")

		if remote {
			chunk, err := newClient().Interpret(cmd.Context(), event, args[0])
			if err != nil {
				return fmt.Errorf("interpret: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), chunk)
		}
		return printJSON(cmd.OutOrStdout(), stream.Interpret(event, args[0]))
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <file|->",
	Short: "Replay a captured stream and print the accumulated snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, _ := cmd.Flags().GetString("event")
		submit, _ := cmd.Flags().GetBool("submit")
		levelFlag, _ := cmd.Flags().GetString("log-level")

		in, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		if submit {
			created, err := newClient().Ingest(cmd.Context(), in, event)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), created)
		}

		level, ok := logging.ParseLevel(levelFlag)
		if !ok {
			return fmt.Errorf("unknown log level %q", levelFlag)
		}
		view, err := replay(cmd.Context(), in, event, level, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), view)
	},
}

// replay consumes a captured stream locally. A failed stream still yields
// the view accumulated up to the failure.
func replay(ctx context.Context, r io.Reader, event string, level logging.Level, logOut io.Writer) (session.View, error) {
	log := logging.New(logging.Config{Output: logOut, Level: level, Component: "replay"})
	store := session.NewStore(1)
	sess, err := store.Create(session.SourceIngest)
	if err != nil {
		return session.View{}, err
	}
	consumer := session.NewConsumer(session.NewHub(), log, 0)
	if err := consumer.Consume(ctx, sess, r, event); err != nil {
		fmt.Fprintf(logOut, "Warning: %v\n", err)
	}
	return sess.View(), nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
