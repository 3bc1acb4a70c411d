package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ethosumonitor/internal/replay"
)

func newFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "file CAPTURE",
		Short: "Replay a binary capture of event records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			a.log.Debug("replaying capture", zap.String("path", args[0]), zap.Uint64("records", r.Records()))
			return a.run(cmd, r)
		},
	}
}
