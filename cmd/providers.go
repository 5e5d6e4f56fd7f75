package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersURL string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers in the order they would be tried",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cfg, "providers")
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tNAME\tCAPABILITY\tSCORE\tCOST/REQ\tTHRESHOLD")
		chain := a.orch.SelectProviders(providersURL)
		for i, sel := range chain {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t$%.4f\t%.0f\n",
				i+1, sel.Name, sel.Capability, sel.Score, sel.CostPerRequest, sel.Threshold)
		}

		selected := make(map[string]bool, len(chain))
		for _, sel := range chain {
			selected[sel.Name] = true
		}
		for _, p := range a.orch.Providers() {
			if selected[p.Name()] {
				continue
			}
			reason := "not applicable"
			if !p.Status().Enabled {
				reason = "disabled"
			}
			fmt.Fprintf(w, "-\t%s\t%s\t%s\t\t\n", p.Name(), p.Capability(), reason)
		}
		return w.Flush()
	},
}

func init() {
	providersCmd.Flags().StringVar(&providersURL, "url", "https://example.com/", "URL to rank providers for")
	rootCmd.AddCommand(providersCmd)
}
