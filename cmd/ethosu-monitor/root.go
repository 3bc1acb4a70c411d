package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/metrics"
	"ethosumonitor/internal/monitor"
)

const envPrefix = "ETHOSU_MONITOR"

// app carries the state shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	log     *zap.Logger
	stdout  io.Writer
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v, stdout: os.Stdout}

	cmd := &cobra.Command{
		Use:   "ethosu-monitor",
		Short: "Ethos-U monitor downloading profiling data",
		Long: `Ethos-U monitor downloading profiling data.

The Event Recorder library writes performance data to a ring buffer in
target memory. The ring buffer has a limited size and must be streamed
continuously to the host before it overflows. The ELF file given to the
live subcommands must be the application running on the target; it is
used to find the Event Recorder ring buffer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(cmd); err != nil {
				return err
			}
			log, err := common.NewLogger(a.v.GetString("log-level"), a.v.GetBool("log-development"))
			if err != nil {
				return err
			}
			a.log = log
			if used := a.v.ConfigFileUsed(); used != "" {
				a.log.Debug("using config file", zap.String("path", used))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./.ethosu-monitor.yaml or $HOME/.ethosu-monitor.yaml)")
	pf.String("output-format", string(monitor.FormatJSON), "output format: json, binary or records")
	pf.StringP("output", "o", "-", "output file, - for stdout")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-development", false, "human readable console logs")
	pf.Duration("poll-interval", monitor.DefaultPollInterval, "pause between polls without new data")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9091")
	pf.Uint8("component-id", evr.ComponentEthosU, "component id of the profiling records")
	_ = v.BindPFlags(pf)

	cmd.AddCommand(
		newMemoryCmd(a),
		newOpenOCDCmd(a),
		newFileCmd(a),
		newVersionCmd(a),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func (a *app) initConfig(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".ethosu-monitor")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// openOutput opens the configured output. The returned close function is
// a no-op for stdout.
func (a *app) openOutput() (io.Writer, func() error, error) {
	path := a.v.GetString("output")
	if path == "" || path == "-" {
		return a.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (a *app) monitorConfig(out io.Writer, m *metrics.Metrics) monitor.Config {
	return monitor.Config{
		Format:       monitor.Format(a.v.GetString("output-format")),
		Output:       out,
		PollInterval: a.v.GetDuration("poll-interval"),
		Component:    uint8(a.v.GetUint("component-id")),
		Logger:       a.log,
		Metrics:      m,
	}
}

// run drives src until it ends or the command context is cancelled,
// serving metrics next to it when an address is configured. An interrupted
// run prints the record count to stderr.
func (a *app) run(cmd *cobra.Command, src monitor.Source) error {
	ctx := cmd.Context()
	out, closeOut, err := a.openOutput()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	addr := a.v.GetString("metrics-addr")
	if addr != "" {
		m = metrics.New()
	}

	mon, err := monitor.New(src, a.monitorConfig(out, m))
	if err != nil {
		closeOut()
		return err
	}

	var ln net.Listener
	if m != nil {
		if ln, err = net.Listen("tcp", addr); err != nil {
			closeOut()
			return fmt.Errorf("metrics listener: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	driverDone := make(chan struct{})

	g.Go(func() error {
		defer close(driverDone)
		return mon.Run(gctx)
	})

	if ln != nil {
		srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		a.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-driverDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "count=%d\n", mon.Count())
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}
