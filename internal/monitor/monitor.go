// Package monitor runs the capture loop: poll a record source, assemble
// samples and write them out until the input ends or the context is
// cancelled.
package monitor

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"go.uber.org/zap"

	"ethosumonitor/internal/assembler"
	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/printers"
)

// Source produces records. A source signals the end of its input by
// yielding io.EOF; errors that common.IsRecoverable accepts are logged and
// polling continues, any other error stops the monitor.
type Source interface {
	Poll() iter.Seq2[evr.EventRecord, error]
}

type errorLoggerSetter interface {
	SetErrorLogger(common.ErrorLogger)
}

// Monitor is the driver loop.
type Monitor struct {
	src    Source
	cfg    Config
	log    *zap.Logger
	errLog common.ErrorLogger

	asm     *assembler.Assembler
	samples printers.SampleSink
	records printers.RecordSink
	flush   func() error

	count uint64
}

// New validates cfg and builds the output chain for src.
func New(src Source, cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{src: src, cfg: cfg, log: cfg.Logger}
	if m.log == nil {
		m.log = zap.NewNop()
	}

	m.errLog = cfg.ErrorLogger
	if m.errLog == nil {
		m.errLog = common.NewZapErrorLogger(m.log, time.Second, 10)
	}
	if cfg.Metrics != nil {
		m.errLog = cfg.Metrics.ErrorLogger(m.errLog)
	}

	switch cfg.Format {
	case FormatJSON:
		m.asm = assembler.New(cfg.Component)
		m.asm.SetErrorLogger(m.errLog)
		p := printers.NewJSONPrinter(cfg.Output)
		m.samples, m.flush = p, p.Flush
	case FormatBinary:
		p := printers.NewBinaryPrinter(cfg.Output)
		m.records, m.flush = p, p.Flush
	case FormatRecords:
		p := printers.NewRecordPrinter(cfg.Output)
		m.records, m.flush = p, p.Flush
	}

	if s, ok := src.(errorLoggerSetter); ok {
		s.SetErrorLogger(common.ErrorLoggerFunc(m.sourceError))
	}
	return m, nil
}

// sourceError logs a diagnostic from the source. A gap in the record
// stream breaks the sample in progress.
func (m *Monitor) sourceError(e *common.Error) {
	if m.asm != nil && (e.Code == emon.ErrRingOverflow || e.Code == emon.ErrReinitDetected) {
		m.asm.Reset()
	}
	m.errLog.LogError(e)
}

// Run polls until the source reports io.EOF, a fatal error occurs or ctx
// is cancelled. Cancellation is a normal exit. Output is flushed in every
// case.
func (m *Monitor) Run(ctx context.Context) (err error) {
	m.log.Info("monitor started", zap.Stringer("config", m.cfg))
	defer func() {
		if ferr := m.flush(); err == nil {
			err = ferr
		}
		fields := []zap.Field{zap.Uint64("count", m.count)}
		if m.asm != nil {
			st := m.asm.Stats()
			fields = append(fields,
				zap.Uint64("samples", st.Samples),
				zap.Uint64("sequencing_errors", st.SequencingErrors),
				zap.Uint64("dropped", st.Dropped))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		m.log.Info("monitor stopped", fields...)
	}()

	var timer *time.Timer
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, done, err := m.poll(ctx)
		if err != nil || done {
			return err
		}
		if n > 0 || m.cfg.PollInterval == 0 {
			continue
		}

		if timer == nil {
			timer = time.NewTimer(m.cfg.PollInterval)
			defer timer.Stop()
		} else {
			timer.Reset(m.cfg.PollInterval)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// poll runs one poll of the source and returns the number of records
// handled.
func (m *Monitor) poll(ctx context.Context) (n int, done bool, err error) {
	start := time.Now()
	defer func() {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.Polls.Inc()
			m.cfg.Metrics.PollDuration.Observe(time.Since(start).Seconds())
		}
	}()

	for rec, perr := range m.src.Poll() {
		if perr != nil {
			if errors.Is(perr, io.EOF) {
				return n, true, nil
			}
			var e *common.Error
			if common.IsRecoverable(perr) && errors.As(perr, &e) {
				m.sourceError(e)
				continue
			}
			return n, false, perr
		}

		if err := m.handle(rec); err != nil {
			return n, false, err
		}
		n++
		if ctx.Err() != nil {
			break
		}
	}
	return n, false, nil
}

func (m *Monitor) handle(rec evr.EventRecord) error {
	m.count++
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Records.Inc()
	}

	if m.records != nil {
		return m.records.RecordIn(rec)
	}

	s, ok := m.asm.RecordIn(rec)
	if !ok {
		return nil
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Samples.Inc()
	}
	return m.samples.SampleIn(s)
}

// Count returns the number of records handled.
func (m *Monitor) Count() uint64 { return m.count }

// AssemblerStats returns the assembler counters; zero unless the output
// format assembles samples.
func (m *Monitor) AssemblerStats() assembler.Stats {
	if m.asm == nil {
		return assembler.Stats{}
	}
	return m.asm.Stats()
}
