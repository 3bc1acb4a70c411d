package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ethosumonitor/internal/probe"
)

func newOpenOCDCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "openocd ELF",
		Aliases: []string{"daplink"},
		Short:   "Read the ring buffer through a debug probe served by OpenOCD",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.v.GetString("addr")
			timeout := a.v.GetDuration("timeout")

			dialCtx, cancel := cmd.Context(), context.CancelFunc(func() {})
			if timeout > 0 {
				dialCtx, cancel = context.WithTimeout(dialCtx, timeout)
			}
			client, err := probe.Dial(dialCtx, addr, timeout)
			cancel()
			if err != nil {
				return err
			}
			a.log.Info("connected to openocd", zap.String("addr", addr))

			acc := client.Accessor(a.v.GetInt("retries"), a.v.GetDuration("retry-backoff"))
			src, err := attach(a, acc, args[0])
			if err != nil {
				client.Close()
				return err
			}
			defer src.Detach()

			// The first poll sees the reinit and reads from record 0.
			if a.v.GetBool("reset") {
				if err := client.Reset(); err != nil {
					return err
				}
				a.log.Info("target reset")
			}
			return a.run(cmd, src)
		},
	}
	cmd.Flags().String("addr", probe.DefaultAddr, "OpenOCD Tcl RPC address")
	cmd.Flags().Duration("timeout", probe.DefaultTimeout, "connect and command timeout")
	cmd.Flags().Int("retries", 1000, "read attempts before a transport error is reported")
	cmd.Flags().Duration("retry-backoff", 0, "pause between read attempts")
	cmd.Flags().Bool("reset", true, "reset the target after attaching")
	return cmd
}
