package main

import (
	"fmt"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/spf13/cobra"
)

var filters domain.SearchFilters

var searchCmd = &cobra.Command{
	Use:   "search DEP ARR DATE",
	Short: "Search flights through the cache, syncing on an empty store",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, date, err := parseArgs(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		_, app, _, closeFn, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		found, err := app.Service.Search(cmd.Context(), route, date, filters)
		if err != nil {
			return err
		}
		return printJSON(found)
	},
}

var bypassCmd = &cobra.Command{
	Use:       "bypass [on|off]",
	Short:     "Show or set the shared search cache bypass flag",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, app, _, closeFn, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		if len(args) == 1 {
			var on bool
			switch args[0] {
			case "on":
				on = true
			case "off":
			default:
				return fmt.Errorf("want on or off, got %q", args[0])
			}
			if err := app.Search.SetBypass(cmd.Context(), on); err != nil {
				return err
			}
		}
		fmt.Printf("bypass: %t\n", app.Search.Bypassed(cmd.Context()))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&filters.AirlineCode, "airline", "", "only this carrier")
	searchCmd.Flags().StringVar(&filters.CabinClass, "cabin", "", "only flights with a fare in this cabin")
	searchCmd.Flags().Float64Var(&filters.MaxPrice, "max-price", 0, "only flights with a fare at or under this amount")

	rootCmd.AddCommand(searchCmd, bypassCmd)
}
