package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"ethosumonitor/internal/assembler"
	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/memacc"
	"ethosumonitor/internal/metrics"
	"ethosumonitor/internal/replay"
)

const (
	infoAddr   = 0x20000000
	statusAddr = 0x20000040
	bufferAddr = 0x20000100
)

// firmware simulates the Event Recorder and the NPU driver writing
// samples into target memory.
type firmware struct {
	t      *testing.T
	mem    *memacc.BufferAccessor
	info   evr.Info
	status evr.Status
}

func newFirmware(t *testing.T, recordCount uint32) *firmware {
	fw := &firmware{
		t:   t,
		mem: memacc.NewBufferAccessor(infoAddr, make([]byte, 0x100+evr.RecordSize*int(recordCount))),
		info: evr.Info{
			ProtocolType:    1,
			ProtocolVersion: 0x0201,
			RecordCount:     recordCount,
			EventBuffer:     bufferAddr,
			EventStatus:     statusAddr,
		},
		status: evr.Status{TSLast: 1},
	}
	enc := fw.info.Encode()
	require.NoError(t, fw.mem.WriteMemory(infoAddr, enc[:]))
	fw.publish()
	return fw
}

func (fw *firmware) publish() {
	enc := fw.status.Encode()
	require.NoError(fw.t, fw.mem.WriteMemory(statusAddr, enc[:]))
}

func (fw *firmware) put(rec evr.EventRecord) {
	require.NoError(fw.t, fw.mem.WriteMemory(fw.info.RecordAddr(fw.status.RecordIndex), rec.Raw[:]))
	fw.status.RecordIndex++
	fw.status.TSLast = rec.Timestamp
}

func sampleFor(i int) assembler.Sample {
	return assembler.Sample{
		Timestamp:   uint32(1000 + 100*i),
		QRead:       uint32(i),
		Status:      0x80000000 | uint32(i),
		CycleCount:  uint64(i)<<32 | 0xfffffff0,
		EventConfig: []uint32{0x11, uint32(0x20 + i)},
		EventCount:  []uint32{uint32(i * 3), 0xffffffff},
	}
}

// writeSample writes the record group of s, with a clock record from the
// Event Recorder itself in the middle.
func (fw *firmware) writeSample(s assembler.Sample) {
	n := 2 + len(s.EventConfig)
	rec := func(msg int, v1, v2 uint32) evr.EventRecord {
		flags := evr.InfoValid
		if msg == 0 {
			flags |= evr.InfoFirst
		}
		if msg == n-1 {
			flags |= evr.InfoLast
		}
		return evr.NewRecord(s.Timestamp, v1, v2, evr.MakeInfo(evr.ComponentEthosU, uint8(msg), flags))
	}
	fw.put(rec(0, uint32(s.CycleCount), uint32(s.CycleCount>>32)))
	fw.put(evr.NewRecord(s.Timestamp, 0, 0, evr.MakeInfo(evr.ComponentEvent, evr.MessageClock, evr.InfoFirst|evr.InfoLast)))
	fw.put(rec(1, s.QRead, s.Status))
	for i := range s.EventConfig {
		fw.put(rec(2+i, s.EventConfig[i], s.EventCount[i]))
	}
	fw.publish()
}

func (fw *firmware) Symbol(name string) (uint64, uint64, error) {
	if name != evr.InfoSymbol {
		return 0, 0, common.Errorf(emon.ErrNotFound, "symbol %s not found", name)
	}
	return infoAddr, evr.InfoSize, nil
}

func (fw *firmware) SymbolData(name string) ([]byte, error) {
	if _, _, err := fw.Symbol(name); err != nil {
		return nil, err
	}
	enc := fw.info.Encode()
	return enc[:], nil
}

// scripted runs step before every poll of src and ends the input after
// polls polls.
type scripted struct {
	src   Source
	step  func(poll int)
	polls int
	n     int
}

func (s *scripted) Poll() iter.Seq2[evr.EventRecord, error] {
	return func(yield func(evr.EventRecord, error) bool) {
		if s.n == s.polls {
			yield(evr.EventRecord{}, io.EOF)
			return
		}
		if s.step != nil {
			s.step(s.n)
		}
		s.n++
		for rec, err := range s.src.Poll() {
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (s *scripted) SetErrorLogger(l common.ErrorLogger) {
	if e, ok := s.src.(errorLoggerSetter); ok {
		e.SetErrorLogger(l)
	}
}

func decodeLines(t *testing.T, out string) []assembler.Sample {
	t.Helper()
	var samples []assembler.Sample
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		var s assembler.Sample
		require.NoError(t, json.Unmarshal([]byte(line), &s), line)
		samples = append(samples, s)
	}
	return samples
}

func TestEndToEndJSON(t *testing.T) {
	const groups = 25
	fw := newFirmware(t, 16)
	consumer, err := AttachTarget(fw.mem, fw)
	require.NoError(t, err)

	var out bytes.Buffer
	cfg := DefaultConfig(&out)
	cfg.PollInterval = 0
	cfg.Logger = zaptest.NewLogger(t)
	errs := &common.ErrorList{}
	cfg.ErrorLogger = errs

	src := &scripted{src: consumer, polls: groups, step: func(i int) { fw.writeSample(sampleFor(i)) }}
	m, err := New(src, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	samples := decodeLines(t, out.String())
	require.Len(t, samples, groups)
	for i, s := range samples {
		assert.Equal(t, sampleFor(i), s, "sample %d", i)
	}
	assert.Empty(t, errs.Errors())
	assert.EqualValues(t, groups*5, m.Count())
	assert.EqualValues(t, groups, m.AssemblerStats().Samples)
	assert.EqualValues(t, groups, m.AssemblerStats().Filtered)
}

func TestEndToEndOverflowRecovers(t *testing.T) {
	fw := newFirmware(t, 8)
	consumer, err := AttachTarget(fw.mem, fw)
	require.NoError(t, err)

	var out bytes.Buffer
	cfg := DefaultConfig(&out)
	cfg.PollInterval = 0
	errs := &common.ErrorList{}
	cfg.ErrorLogger = errs

	// Poll 1 finds three groups (15 records) in an 8 slot ring.
	src := &scripted{src: consumer, polls: 3, step: func(i int) {
		switch i {
		case 0:
			for g := 0; g < 3; g++ {
				fw.writeSample(sampleFor(g))
			}
		default:
			fw.writeSample(sampleFor(10 + i))
		}
	}}
	m, err := New(src, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	samples := decodeLines(t, out.String())
	require.Len(t, samples, 2)
	assert.Equal(t, sampleFor(11), samples[0])
	assert.Equal(t, sampleFor(12), samples[1])
	assert.Equal(t, 1, errs.Count(emon.ErrRingOverflow))
}

func TestBinaryCaptureReplays(t *testing.T) {
	const groups = 4
	fw := newFirmware(t, 64)
	consumer, err := AttachTarget(fw.mem, fw)
	require.NoError(t, err)

	var capture bytes.Buffer
	cfg := DefaultConfig(&capture)
	cfg.Format = FormatBinary
	cfg.PollInterval = 0
	src := &scripted{src: consumer, polls: groups, step: func(i int) { fw.writeSample(sampleFor(i)) }}
	m, err := New(src, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, groups*5*evr.RecordSize, capture.Len())

	var out bytes.Buffer
	cfg = DefaultConfig(&out)
	m, err = New(replay.NewReader(bytes.NewReader(capture.Bytes()), int64(capture.Len())), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	samples := decodeLines(t, out.String())
	require.Len(t, samples, groups)
	for i, s := range samples {
		assert.Equal(t, sampleFor(i), s)
	}
}

func TestRecordsFormat(t *testing.T) {
	rec := evr.NewRecord(5, 6, 7, evr.MakeInfo(evr.ComponentEthosU, 2, 0))
	var capture bytes.Buffer
	capture.Write(rec.Raw[:])

	var out bytes.Buffer
	cfg := DefaultConfig(&out)
	cfg.Format = FormatRecords
	m, err := New(replay.NewReader(bytes.NewReader(capture.Bytes()), int64(capture.Len())), cfg)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, `Idx:0; ID:0002; { "timestamp": 0x5, "val1": 0x6, "val2": 0x7, "info": "0x2" }`+"\n", out.String())
}

// errSource yields its script once per poll.
type errSource struct {
	polls [][]error
	recs  []evr.EventRecord
	n     int
}

func (s *errSource) Poll() iter.Seq2[evr.EventRecord, error] {
	return func(yield func(evr.EventRecord, error) bool) {
		if s.n >= len(s.polls) {
			yield(evr.EventRecord{}, io.EOF)
			return
		}
		script := s.polls[s.n]
		s.n++
		for _, err := range script {
			var rec evr.EventRecord
			if err == nil {
				rec = s.recs[0]
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func TestErrorHandling(t *testing.T) {
	rec := evr.NewRecord(1, 2, 3, evr.MakeInfo(evr.ComponentEthosU, 0, 0))
	transport := common.NewError(emon.ErrSevError, emon.ErrTransport)
	overflow := common.NewError(emon.ErrSevWarn, emon.ErrRingOverflow)

	var out bytes.Buffer
	cfg := DefaultConfig(&out)
	cfg.Format = FormatBinary
	errs := &common.ErrorList{}
	cfg.ErrorLogger = errs
	cfg.Metrics = metrics.New()

	src := &errSource{
		recs:  []evr.EventRecord{rec},
		polls: [][]error{{nil, overflow, nil}, {transport}, {nil}},
	}
	m, err := New(src, cfg)
	require.NoError(t, err)

	err = m.Run(context.Background())
	assert.True(t, errors.Is(err, emon.ErrTransport), "got %v", err)
	// Output written before the failure is flushed
	assert.Equal(t, 2*evr.RecordSize, out.Len())
	assert.Equal(t, 1, errs.Count(emon.ErrRingOverflow))
	assert.EqualValues(t, 2, m.Count())

	assert.Equal(t, 2.0, testutil.ToFloat64(cfg.Metrics.Records))
	assert.Equal(t, 2.0, testutil.ToFloat64(cfg.Metrics.Polls))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.Diagnostics.WithLabelValues("EMON_ERR_RING_OVERFLOW")))
}

// gapSource yields one poll of records with a diagnostic in between and
// then ends.
type gapSource struct {
	before, after []evr.EventRecord
	gap           *common.Error
	done          bool
}

func (s *gapSource) Poll() iter.Seq2[evr.EventRecord, error] {
	return func(yield func(evr.EventRecord, error) bool) {
		if s.done {
			yield(evr.EventRecord{}, io.EOF)
			return
		}
		s.done = true
		for _, r := range s.before {
			if !yield(r, nil) {
				return
			}
		}
		if !yield(evr.EventRecord{}, s.gap) {
			return
		}
		for _, r := range s.after {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestGapDiscardsPartialSample(t *testing.T) {
	fw := newFirmware(t, 16)
	fw.writeSample(sampleFor(1))
	var recs []evr.EventRecord
	for i := range 5 {
		data, err := fw.mem.ReadMemory(fw.info.RecordAddr(uint32(i)), evr.RecordSize)
		require.NoError(t, err)
		rec, err := evr.DecodeRecord(data)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	for _, code := range []emon.Err{emon.ErrRingOverflow, emon.ErrReinitDetected} {
		t.Run(code.Error(), func(t *testing.T) {
			var out bytes.Buffer
			cfg := DefaultConfig(&out)
			errs := &common.ErrorList{}
			cfg.ErrorLogger = errs

			// The group continues with matching ids after the gap
			src := &gapSource{before: recs[:2], after: recs[2:], gap: common.NewError(emon.ErrSevWarn, code)}
			m, err := New(src, cfg)
			require.NoError(t, err)
			require.NoError(t, m.Run(context.Background()))

			assert.Empty(t, out.String())
			assert.Equal(t, 1, errs.Count(code))
			assert.Zero(t, errs.Count(emon.ErrSequencing))
			assert.EqualValues(t, 0, m.AssemblerStats().Samples)
		})
	}
}

func TestCancellation(t *testing.T) {
	fw := newFirmware(t, 16)
	consumer, err := AttachTarget(fw.mem, fw)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	var out bytes.Buffer
	cfg := DefaultConfig(&out)
	cfg.PollInterval = time.Millisecond
	cfg.Logger = zap.New(core)
	cfg.Metrics = metrics.New()

	fw.writeSample(sampleFor(0))
	m, err := New(consumer, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return testutil.ToFloat64(cfg.Metrics.Polls) > 3 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	assert.Len(t, decodeLines(t, out.String()), 1)
	stopped := logs.FilterMessage("monitor stopped").All()
	require.Len(t, stopped, 1)
	assert.EqualValues(t, 5, stopped[0].ContextMap()["count"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"binary", func(c *Config) { c.Format = FormatBinary }, true},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, false},
		{"no output", func(c *Config) { c.Output = nil }, false},
		{"negative interval", func(c *Config) { c.PollInterval = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(io.Discard)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, emon.ErrInvalidParamVal), "got %v", err)
			}
		})
	}

	_, err := New(&errSource{}, Config{Format: "xml", Output: io.Discard})
	assert.Error(t, err)
}

func TestAttachTargetErrors(t *testing.T) {
	fw := newFirmware(t, 4)

	_, err := AttachTarget(fw.mem, missingSymbols{})
	assert.True(t, errors.Is(err, emon.ErrNotFound), "got %v", err)

	// Image built for a different ring buffer
	other := newFirmware(t, 4)
	other.info.EventBuffer += 0x40
	_, err = AttachTarget(fw.mem, other)
	assert.True(t, errors.Is(err, emon.ErrDescriptorMismatch), "got %v", err)
}

type missingSymbols struct{}

func (missingSymbols) Symbol(name string) (uint64, uint64, error) {
	return 0, 0, common.Errorf(emon.ErrNotFound, "symbol %s not found", name)
}

func (missingSymbols) SymbolData(name string) ([]byte, error) {
	return nil, common.Errorf(emon.ErrNotFound, "symbol %s not found", name)
}
