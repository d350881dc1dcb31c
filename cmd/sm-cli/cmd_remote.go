package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phobos.org.uk/sajtmaskin/internal/api"
	"phobos.org.uk/sajtmaskin/internal/session"
)

func init() {
	streamsCmd.Flags().String("state", "", "Only streams in this state")
	streamsCmd.Flags().Int("page", 1, "Page number")
	streamsCmd.Flags().Int("limit", 20, "Streams per page")

	generateCmd.Flags().String("chat-id", "", "Continue an existing chat")
	generateCmd.Flags().String("system", "", "System prompt")
	generateCmd.Flags().String("model", "", "Model id")
	generateCmd.Flags().Bool("watch", true, "Follow the stream until it ends")

	watchCmd.Flags().Bool("json", false, "Print events as JSON lines")

	rootCmd.AddCommand(statusCmd, streamsCmd, showCmd, generateCmd, watchCmd, cancelCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "List streams, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := newClient().List(cmd.Context(), page, limit, state)
		if err != nil {
			return fmt.Errorf("list streams: %w", err)
		}
		if len(list.Streams) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No streams found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATE\tCHUNKS\tCHAT\tCREATED")
		for _, s := range list.Streams {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				s.ID,
				s.Source,
				s.State,
				s.Chunks,
				s.ChatID,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d streams\n", list.Page, list.TotalPages, list.Total)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stream with its snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := newClient().Stream(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("show: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), view)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <message>",
	Short: "Start a generation relayed by the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, _ := cmd.Flags().GetString("chat-id")
		system, _ := cmd.Flags().GetString("system")
		model, _ := cmd.Flags().GetString("model")
		watch, _ := cmd.Flags().GetBool("watch")

		c := newClient()
		created, err := c.Generate(cmd.Context(), api.GenerateRequest{
			Message: strings.Join(args, " "),
			ChatID:  chatID,
			System:  system,
			ModelID: model,
		})
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stream started: %s\n", created.StreamID)
		if !watch {
			return printJSON(cmd.OutOrStdout(), created)
		}

		p := &eventPrinter{out: cmd.OutOrStdout(), info: cmd.ErrOrStderr()}
		return c.Watch(cmd.Context(), created.StreamID, p.print)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a stream's live events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		p := &eventPrinter{out: cmd.OutOrStdout(), info: cmd.ErrOrStderr(), json: asJSON}
		return newClient().Watch(cmd.Context(), args[0], p.print)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Cancel(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("cancel: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
		return nil
	},
}

// eventPrinter renders stream events. Content text goes to out as it
// arrives; everything else is reported on info.
type eventPrinter struct {
	out     io.Writer
	info    io.Writer
	json    bool
	started bool
}

func (p *eventPrinter) print(ev session.Event) error {
	if p.json {
		return printJSONLine(p.out, ev)
	}

	first := !p.started
	p.started = true

	if ev.Chunk == nil {
		if first && ev.Snapshot != nil {
			// Text accumulated before the watch began.
			fmt.Fprint(p.out, ev.Snapshot.Content)
		}
		if ev.State.IsTerminal() {
			p.summary(ev)
		}
		return nil
	}

	c := ev.Chunk
	if c.ChatID != nil {
		fmt.Fprintf(p.info, "[chat %s]\n", *c.ChatID)
	}
	if c.Content != nil {
		fmt.Fprint(p.out, *c.Content)
	}
	for _, part := range c.Parts {
		if part.ToolCallID != "" {
			fmt.Fprintf(p.info, "[tool %s %s %s]\n", part.ToolName, part.ToolCallID, part.State)
		}
	}
	for _, sig := range c.Signals {
		fmt.Fprintf(p.info, "[integration %s %s %s]\n", sig.Provider, sig.Intent, strings.Join(sig.EnvVars, ","))
	}
	return nil
}

func (p *eventPrinter) summary(ev session.Event) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.info, "Stream %s %s\n", ev.StreamID, ev.State)
	if ev.Error != "" {
		fmt.Fprintf(p.info, "Error: %s\n", ev.Error)
	}
	if ev.Snapshot != nil && ev.Snapshot.DemoURL != "" {
		fmt.Fprintf(p.info, "Demo: %s\n", ev.Snapshot.DemoURL)
	}
}

func printJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
