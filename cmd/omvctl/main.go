package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	grpc_handler "omvstack.control/internal/adapters/handler/grpc"
	"omvstack.control/internal/adapters/handler/terminal"
	"omvstack.control/internal/adapters/rpcclient"
	"omvstack.control/internal/adapters/runner"
	"omvstack.control/internal/catalog"
	"omvstack.control/internal/panel"
	"omvstack.control/internal/release"
)

// errReported is returned once the UI has already shown the failure.
var errReported = errors.New("reported")

type options struct {
	server    string
	transport string
	token     string
	yes       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "omvctl",
		Short:         "Control the omvstack service panels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("OMVSTACK_SERVER", "http://localhost:8080"), "server URL (http) or host:port (grpc)")
	flags.StringVar(&opts.transport, "transport", "http", "transport: http or grpc")
	flags.StringVar(&opts.token, "token", os.Getenv("RPC_SECRET"), "shared rpc secret")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "answer yes to confirmations and do not wait for input")

	defs := catalog.Definitions("", "")
	root.AddCommand(newPanelsCmd(defs))
	for _, def := range defs {
		root.AddCommand(newPanelCmd(def.Panel.WithDefaults(), opts))
	}
	root.AddCommand(newReleaseCmd())
	return root
}

func newPanelsCmd(defs []catalog.Definition) *cobra.Command {
	return &cobra.Command{
		Use:   "panels",
		Short: "List the service panels",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := catalog.Workspace(defs)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tSERVICE\tACTIONS")
			for _, d := range ws.Panels() {
				actions := make([]string, 0, len(d.Actions))
				for _, a := range d.Actions {
					actions = append(actions, string(a))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Title, d.Service, strings.Join(actions, ","))
			}
			return tw.Flush()
		},
	}
}

func newPanelCmd(desc panel.Descriptor, opts *options) *cobra.Command {
	valid := []string{"status"}
	for _, a := range desc.Actions {
		valid = append(valid, string(a))
	}

	return &cobra.Command{
		Use:       desc.ID + " <" + strings.Join(valid, "|") + "> [controller]",
		Short:     desc.Title + " panel",
		ValidArgs: valid,
		Args:      cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, closeFn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ui := terminal.New(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.yes)
			ui.Layout(desc.StatusFields)
			p, err := panel.New(desc, caller, ui, panel.WithHost(serverHost(opts.server)))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			switch {
			case args[0] == "status":
				err = p.Mount(ctx)
			case args[0] == string(panel.ActionController) && len(args) == 2:
				err = p.ControllerDetails(ctx, args[1])
			default:
				action, ok := panel.ParseAction(args[0])
				if !ok {
					return fmt.Errorf("unknown action %q, want one of %s", args[0], strings.Join(valid, ", "))
				}
				err = p.Press(ctx, action)
			}
			if err != nil && ui.Reported() {
				return errReported
			}
			return err
		},
	}
}

func newReleaseCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Plugin release helpers",
	}
	cmd.PersistentFlags().StringVar(&root, "root", ".", "plugin repository root")

	cmd.AddCommand(&cobra.Command{
		Use:   "versions <plugin>...",
		Short: "Print the changelog version of each plugin as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := release.ReadVersions(root, args)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(versions)
		},
	})

	var base, head string
	changed := &cobra.Command{
		Use:   "changed",
		Short: "Print the plugins changed since base (or the latest v* tag) as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := release.NewRepo(root, runner.NewExec()).ChangedPlugins(cmd.Context(), base, head)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(changes)
		},
	}
	changed.Flags().StringVar(&base, "base", os.Getenv("BASE_REF"), "base git ref")
	changed.Flags().StringVar(&head, "head", envOr("HEAD_REF", "HEAD"), "head git ref")
	cmd.AddCommand(changed)

	return cmd
}

func dial(opts *options) (panel.Caller, func() error, error) {
	switch opts.transport {
	case "http":
		return rpcclient.New(opts.server, opts.token), func() error { return nil }, nil
	case "grpc":
		client, err := grpc_handler.Dial(strings.TrimPrefix(opts.server, "grpc://"), opts.token)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", opts.transport)
}

// serverHost is the host the web interfaces are reached on.
func serverHost(server string) string {
	if u, err := url.Parse(server); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if host, _, err := net.SplitHostPort(server); err == nil {
		return host
	}
	return "localhost"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
