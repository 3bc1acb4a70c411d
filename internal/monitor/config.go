package monitor

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/evr"
	"ethosumonitor/internal/metrics"
)

// Format selects what the monitor writes.
type Format string

const (
	// FormatJSON writes one JSON line per assembled sample.
	FormatJSON Format = "json"
	// FormatBinary writes the raw 16 byte records.
	FormatBinary Format = "binary"
	// FormatRecords writes one diagnostic text line per record.
	FormatRecords Format = "records"
)

// Formats lists the accepted output formats.
var Formats = []Format{FormatJSON, FormatBinary, FormatRecords}

// DefaultPollInterval is the pause between polls that found no new data.
const DefaultPollInterval = 10 * time.Millisecond

// Config configures a Monitor.
type Config struct {
	Format Format
	Output io.Writer

	// PollInterval is the pause between polls. Zero polls back to back.
	PollInterval time.Duration

	// Component is the component id of sample records, normally
	// evr.ComponentEthosU.
	Component uint8

	Logger *zap.Logger

	// ErrorLogger receives recoverable diagnostics. Defaults to a rate
	// limited logger writing to Logger.
	ErrorLogger common.ErrorLogger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a configuration writing JSON samples to w.
func DefaultConfig(w io.Writer) Config {
	return Config{
		Format:       FormatJSON,
		Output:       w,
		PollInterval: DefaultPollInterval,
		Component:    evr.ComponentEthosU,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatBinary, FormatRecords:
	default:
		return common.Errorf(emon.ErrInvalidParamVal, "unknown output format %q, expected one of %v", c.Format, Formats)
	}
	if c.Output == nil {
		return common.Errorf(emon.ErrInvalidParamVal, "no output")
	}
	if c.PollInterval < 0 {
		return common.Errorf(emon.ErrInvalidParamVal, "negative poll interval %s", c.PollInterval)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("format=%s poll=%s component=%#x", c.Format, c.PollInterval, c.Component)
}
