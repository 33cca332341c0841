package cli

import (
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveProtocol string
	serveMode     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("addr") {
			a.Config.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("protocol") {
			a.Config.Server.Protocol = serveProtocol
		}
		if cmd.Flags().Changed("mode") {
			a.Config.Server.Mode = serveMode
		}
		return a.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveProtocol, "protocol", "", "Wire format: text or binary (overrides server.protocol)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "Connection mode: single or persistent (overrides server.mode)")
}
