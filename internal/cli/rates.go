package cli

import (
	"github.com/spf13/cobra"

	"fx-converter/internal/app"
)

var ratesCmd = &cobra.Command{
	Use:   "rates [CODE...]",
	Short: "Fetch and print the current rate table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowRates(cmd.Context(), app.ShowOptions{
			Codes: args,
			Out:   cmd.OutOrStdout(),
		})
	},
}
