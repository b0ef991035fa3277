package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faradayfan/dedicated-server-manager/internal/api"
	"github.com/faradayfan/dedicated-server-manager/internal/ini"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and import profile directories",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <dir>",
	Short: "Print a profile directory without contacting the manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		store := profiles.NewStore(catalog, cfg.Mode(), cfg.Profiles.ConfigFile, nil)
		p, warns, err := store.Load(args[0])
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), warns.Strings())
		printProfile(cmd.OutOrStdout(), p, showAll)
		return nil
	},
}

var noIni bool

var profileImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Bring an existing server directory under management",
	Long: `Registers an existing server directory with the running manager. Settings
found in its INI file become the profile's overrides. With --no-ini the INI
file stays under your control and the manager never rewrites it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		includeIni := !noIni
		var resp api.ImportResponse
		req := api.ImportRequest{Dir: dir, IncludeIni: &includeIni}
		if err := newClient().do(cmd.Context(), "POST", "/servers/import", req, &resp); err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), resp.Warnings)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s)\n", resp.Name, resp.ID)
		return nil
	},
}

func init() {
	profileShowCmd.Flags().BoolVar(&showAll, "all", false, "include settings left at their default")
	profileImportCmd.Flags().BoolVar(&noIni, "no-ini", false, "leave the INI file to be managed by hand")
	profileCmd.AddCommand(profileShowCmd, profileImportCmd)
	rootCmd.AddCommand(profileCmd)
}

func printProfile(out io.Writer, p *profiles.Profile, all bool) {
	fmt.Fprintf(out, "%s (%s)\n", p.Name, p.ID)
	if p.InstallDir != "" {
		fmt.Fprintf(out, "install dir: %s\n", p.InstallDir)
	}
	if args, err := p.CommandLine(); err != nil {
		fmt.Fprintf(out, "command line: %v\n", err)
	} else {
		fmt.Fprintf(out, "command line: %s\n", strings.Join(args, " "))
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tVALUE\tLOCATION")
	if all {
		for _, s := range p.Catalog().All() {
			v, _ := p.Value(s.Name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, ini.FormatValue(s, v), s.Location)
		}
	} else {
		for _, o := range p.Overrides() {
			s, _ := p.Catalog().Lookup(o.Name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, ini.FormatValue(s, o.Value), s.Location)
		}
	}
	w.Flush()
}
