package main

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faradayfan/dedicated-server-manager/internal/api"
)

var (
	showAll  bool
	favorite bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings <id>",
	Short: "Show the settings of a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/servers/" + url.PathEscape(args[0]) + "/settings"
		if showAll {
			path += "?all=true"
		}
		var resp api.SettingsResponse
		if err := newClient().do(cmd.Context(), "GET", path, nil, &resp); err != nil {
			return err
		}
		printSettings(cmd.OutOrStdout(), resp.Settings)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <id> <setting> <value>",
	Short: "Override a setting",
	Long: `Overrides a setting in the server's profile. The value uses the same
text form as the INI file. Run "gsm save" to write the profile to disk.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var v api.SettingView
		path := "/servers/" + url.PathEscape(args[0]) + "/settings/" + url.PathEscape(args[1])
		req := api.SetSettingRequest{Value: args[2], Favorite: favorite}
		if err := newClient().do(cmd.Context(), "PUT", path, req, &v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", v.Name, v.Value)
		return nil
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset <id> <setting>",
	Short: "Return a setting to its default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/servers/" + url.PathEscape(args[0]) + "/settings/" + url.PathEscape(args[1])
		return newClient().do(cmd.Context(), "DELETE", path, nil, nil)
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <id>",
	Short: "Write a server's profile to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.SaveResponse
		path := "/servers/" + url.PathEscape(args[0]) + "/settings/save"
		if err := newClient().do(cmd.Context(), "POST", path, nil, &resp); err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), resp.Warnings)
		return nil
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&showAll, "all", false, "include settings left at their default")
	setCmd.Flags().BoolVar(&favorite, "favorite", false, "mark the setting as a favorite")
	rootCmd.AddCommand(settingsCmd, setCmd, unsetCmd, saveCmd)
}

func printSettings(out io.Writer, list []api.SettingView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tVALUE\tDEFAULT\tKIND\tLOCATION")
	for _, s := range list {
		name := s.Name
		if s.Favorite {
			name = "*" + name
		}
		value := s.Value
		if !s.Overridden {
			value = "(default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, value, s.Default, s.Kind, s.Location)
	}
	w.Flush()
}

func printWarnings(out io.Writer, warns []string) {
	for _, w := range warns {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}
