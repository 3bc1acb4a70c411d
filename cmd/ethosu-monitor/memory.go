package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ethosumonitor/internal/elfimage"
	"ethosumonitor/internal/memacc"
	"ethosumonitor/internal/memmap"
	"ethosumonitor/internal/monitor"
	"ethosumonitor/internal/ringbuf"
)

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory --memory-map FILE ELF",
		Short: "Read the ring buffer through memory mapped images or /dev/mem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := memmap.Load(a.v.GetString("memory-map"))
			if err != nil {
				return err
			}
			mapper, err := m.Build(memmap.Options{DevMem: a.v.GetString("devmem")})
			if err != nil {
				return err
			}
			a.log.Debug("memory map loaded", zap.Int("regions", len(mapper.GetAccessors())))

			src, err := attach(a, mapper, args[0])
			if err != nil {
				mapper.Close()
				return err
			}
			defer src.Detach()
			return a.run(cmd, src)
		},
	}
	cmd.Flags().String("memory-map", "", "YAML memory map translating target addresses to host memory")
	cmd.Flags().String("devmem", memacc.DefaultDevMem, "physical memory device")
	_ = cmd.MarkFlagRequired("memory-map")
	return cmd
}

// attach opens the firmware image and attaches a consumer through r.
func attach(a *app, r memacc.Reader, elfPath string) (*ringbuf.Consumer, error) {
	img, err := elfimage.Open(elfPath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	c, err := monitor.AttachTarget(r, img)
	if err != nil {
		return nil, err
	}
	a.log.Info("attached to event recorder",
		zap.String("elf", img.Path()),
		zap.Stringer("info", c.Info()),
	)
	return c, nil
}
