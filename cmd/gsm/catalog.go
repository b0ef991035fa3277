package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faradayfan/dedicated-server-manager/internal/ini"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the known settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		printCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func printCatalog(out io.Writer, c *settings.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tKIND\tDEFAULT\tLOCATION\tSECTION")
	for _, s := range c.All() {
		name := s.Name
		if s.Deprecated {
			name += " (deprecated)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, s.Kind, ini.FormatValue(s, s.Default), s.Location, s.Section)
	}
	w.Flush()
}
