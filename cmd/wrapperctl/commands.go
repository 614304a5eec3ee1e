package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	"github.com/TheGojiOG/mc-server-wrapper/internal/rpc"
	"github.com/TheGojiOG/mc-server-wrapper/internal/tlscert"
)

const defaultAddress = "127.0.0.1:6970"

type options struct {
	addr     string
	timeout  time.Duration
	json     bool
	tls      bool
	caFile   string
	insecure bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "wrapperctl",
		Short:         "Control a running mc-wrapper over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := os.Getenv("WRAPPER_GRPC_ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = defaultAddress
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "wrapper gRPC address")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")
	root.PersistentFlags().BoolVar(&opts.tls, "tls", false, "connect with TLS")
	root.PersistentFlags().StringVar(&opts.caFile, "ca-file", "", "CA or server certificate to trust (implies --tls)")
	root.PersistentFlags().BoolVar(&opts.insecure, "insecure-skip-verify", false, "skip server certificate verification (implies --tls)")

	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newPlayersCmd(opts))
	root.AddCommand(newStopCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newSendCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	return root
}

// withClient dials, runs fn with a request context, and turns gRPC errors
// into plain messages.
func withClient(cmd *cobra.Command, opts *options, timeout time.Duration, fn func(ctx context.Context, c *rpc.Client) error) error {
	dialOpts, err := opts.dialOptions()
	if err != nil {
		return err
	}
	client, err := rpc.Dial(opts.addr, dialOpts...)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := fn(ctx, client); err != nil {
		if st, ok := status.FromError(err); ok {
			return fmt.Errorf("%s: %s", strings.ToLower(st.Code().String()), st.Message())
		}
		return err
	}
	return nil
}

func (o *options) dialOptions() ([]grpc.DialOption, error) {
	if !o.tls && o.caFile == "" && !o.insecure {
		return nil, nil
	}
	tlsCfg, err := tlscert.ClientConfig(o.caFile, o.insecure)
	if err != nil {
		return nil, err
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg))}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, opts.timeout, func(ctx context.Context, c *rpc.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, st)
				}
				fmt.Fprintf(out, "State:      %s\n", st.State)
				if st.Pending != "" && st.Pending != "none" {
					fmt.Fprintf(out, "Pending:    %s\n", st.Pending)
				}
				fmt.Fprintf(out, "Ready:      %t\n", st.Ready)
				fmt.Fprintf(out, "Generation: %d\n", st.Generation)
				fmt.Fprintf(out, "Players:    %d\n", st.PlayerCount)
				if st.PID > 0 {
					fmt.Fprintf(out, "PID:        %d\n", st.PID)
				}
				if st.Uptime != "" {
					fmt.Fprintf(out, "Uptime:     %s\n", st.Uptime)
				}
				if st.LastExit != "" {
					fmt.Fprintf(out, "Last exit:  %s\n", st.LastExit)
				}
				return nil
			})
		},
	}
}

func newPlayersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List players online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, opts.timeout, func(ctx context.Context, c *rpc.Client) error {
				resp, err := c.Players(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				for _, name := range models.PlayerNames(resp.Players) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server and wait for it to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, opts.timeout, func(ctx context.Context, c *rpc.Client) error {
				resp, err := c.Stop(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Server %s (%s)\n", resp.Status, resp.LastExit)
				return nil
			})
		},
	}
}

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Stop the server, archive the world and restart it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, opts.timeout, func(ctx context.Context, c *rpc.Client) error {
				resp, err := c.Backup(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return printJSON(out, resp)
				}
				if resp.ArchiveError != "" {
					fmt.Fprintf(out, "Archive failed: %s\n", resp.ArchiveError)
				} else {
					fmt.Fprintf(out, "Archive: %s\n", resp.ArchivePath)
				}
				fmt.Fprintf(out, "Restarted in %s\n", (time.Duration(resp.DurationMS) * time.Millisecond).String())
				return nil
			})
		},
	}
}

func newSendCmd(opts *options) *cobra.Command {
	var waitAck bool
	cmd := &cobra.Command{
		Use:   "send <line...>",
		Short: "Send a console command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			return withClient(cmd, opts, opts.timeout, func(ctx context.Context, c *rpc.Client) error {
				resp, err := c.Send(ctx, line, waitAck)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				if resp.Ack != "" {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Ack)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&waitAck, "wait", false, "wait for the server to echo the command")
	return cmd
}

func newEventsCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream supervisor events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, 0, func(ctx context.Context, c *rpc.Client) error {
				out := cmd.OutOrStdout()
				return c.Events(ctx, raw, func(ev models.EventMessage) error {
					if opts.json {
						return json.NewEncoder(out).Encode(ev)
					}
					_, err := fmt.Fprintln(out, formatEvent(ev))
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "include unrecognized output lines")
	return cmd
}

func formatEvent(ev models.EventMessage) string {
	ts := ev.Time.Local().Format("15:04:05")
	switch ev.Kind {
	case "state":
		s := fmt.Sprintf("%s state %s -> %s", ts, ev.From, ev.To)
		if ev.Reason != "" {
			s += " (" + ev.Reason + ")"
		}
		return s
	case "input":
		s := fmt.Sprintf("%s input [%s] %s", ts, ev.Producer, ev.Text)
		if ev.Error != "" {
			s += ": " + ev.Error
		}
		return s
	}
	s := fmt.Sprintf("%s %s", ts, ev.Type)
	if ev.Player != "" {
		s += " " + ev.Player
	}
	if ev.Text != "" {
		s += " " + ev.Text
	}
	return s
}
