package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "HTTP API を起動するのだ。",
	Args:    cobra.NoArgs,
	PreRunE: preRunAppE,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx, err := newAppContext(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		srv, err := builder.BuildServer(appCtx)
		if err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" {
			addr = appCtx.Config.HTTPAddr
		}
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けるアドレスなのだ（既定は設定の http_addr）。")
}
