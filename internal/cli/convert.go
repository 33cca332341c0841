package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fx-converter/internal/app"
)

var (
	convertAddr     string
	convertProtocol string
	convertTimeout  time.Duration
)

var convertCmd = &cobra.Command{
	Use:   "convert FROM TO AMOUNT",
	Short: "Send one conversion request to a running server",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[2])
		}

		a := getApp()
		opts := app.ConvertOptions{
			Addr:     a.Config.Client.Addr,
			Protocol: a.Config.Server.Protocol,
			Timeout:  a.Config.Client.Timeout,
			From:     args[0],
			To:       args[1],
			Amount:   amount.InexactFloat64(),
			Out:      cmd.OutOrStdout(),
		}
		if cmd.Flags().Changed("addr") {
			opts.Addr = convertAddr
		}
		if cmd.Flags().Changed("protocol") {
			opts.Protocol = convertProtocol
		}
		if cmd.Flags().Changed("timeout") {
			opts.Timeout = convertTimeout
		}

		return a.Convert(cmd.Context(), opts)
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertAddr, "addr", "", "Server address (overrides client.addr)")
	convertCmd.Flags().StringVar(&convertProtocol, "protocol", "", "Wire format spoken by the server (defaults to server.protocol)")
	convertCmd.Flags().DurationVar(&convertTimeout, "timeout", 0, "Request timeout (overrides client.timeout)")
}
