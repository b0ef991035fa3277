package main

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/faradayfan/dedicated-server-manager/internal/api"
	"github.com/faradayfan/dedicated-server-manager/internal/instances"
	"github.com/faradayfan/dedicated-server-manager/internal/manager"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List managed servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list api.ListResponse
		if err := newClient().do(cmd.Context(), "GET", "/servers", nil, &list); err != nil {
			return err
		}
		printServers(cmd.OutOrStdout(), list.Servers)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one server in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		if err := newClient().do(cmd.Context(), "GET", "/servers/"+url.PathEscape(args[0]), nil, &raw); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(raw))
		return nil
	},
}

// lifecycleCmd posts to /servers/<id>/<action> and prints the resulting state.
func lifecycleCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st manager.Status
			path := "/servers/" + url.PathEscape(args[0]) + "/" + action
			if err := newClient().do(cmd.Context(), "POST", path, nil, &st); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

var createCmd = &cobra.Command{
	Use:   "create <name> <install-dir>",
	Short: "Create a server with a fresh profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sum instances.Summary
		req := api.CreateRequest{Name: args[0], InstallDir: args[1]}
		if err := newClient().do(cmd.Context(), "POST", "/servers", req, &sum); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) in %s\n", sum.Name, sum.ID, sum.Dir)
		return nil
	},
}

var deleteData bool

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Stop managing a server",
	Long: `Removes a server from management. Its profile directory is kept unless
--data is given, in which case a running server is killed and the directory
is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/servers/" + url.PathEscape(args[0])
		if deleteData {
			path += "?data=true"
		}
		if err := newClient().do(cmd.Context(), "DELETE", path, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func enableCmd(enabled bool) *cobra.Command {
	action, short := "enable", "Allow a server to be started"
	if !enabled {
		action, short = "disable", "Prevent a server from being started"
	}
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sum instances.Summary
			path := "/servers/" + url.PathEscape(args[0]) + "/" + action
			if err := newClient().do(cmd.Context(), "POST", path, nil, &sum); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled=%t\n", sum.Name, sum.Enabled)
			return nil
		},
	}
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteData, "data", false, "also kill the server and delete its profile directory")

	rootCmd.AddCommand(
		serversCmd,
		statusCmd,
		createCmd,
		deleteCmd,
		enableCmd(true),
		enableCmd(false),
		lifecycleCmd("start", "Start a server"),
		lifecycleCmd("stop", "Save the world and stop a server"),
		lifecycleCmd("restart", "Stop a server, then start it again"),
		lifecycleCmd("kill", "Terminate a server without saving"),
	)
}

func printServers(out io.Writer, list []instances.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tPID\tPLAYERS\tMEMORY\tENABLED")
	for _, s := range list {
		state := string(s.Status.State)
		if s.Error != "" {
			state = "error: " + s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.ID,
			s.Name,
			state,
			pidLabel(s.Status.PID),
			playersLabel(s.Status),
			memoryLabel(s.Status.MemoryBytes),
			s.Enabled,
		)
	}
	w.Flush()
}

func printStatus(out io.Writer, st manager.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "server\t%s\n", st.ID)
	fmt.Fprintf(w, "state\t%s\n", st.State)
	fmt.Fprintf(w, "pid\t%s\n", pidLabel(st.PID))
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "started\t%s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.ForcedStop {
		fmt.Fprintf(w, "forced stop\tyes\n")
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "last error\t%s\n", st.LastError)
	}
	w.Flush()
}

func pidLabel(pid int32) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

func playersLabel(st manager.Status) string {
	if !st.RconConnected {
		return "-"
	}
	return fmt.Sprint(st.PlayerCount)
}

func memoryLabel(b uint64) string {
	if b == 0 {
		return "-"
	}
	return fmt.Sprintf("%d MiB", b>>20)
}
