package common

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"ethosumonitor/internal/emon"
)

// ErrorLogger receives error objects raised by monitor components.
// Components report recoverable diagnostics through it and keep running.
type ErrorLogger interface {
	LogError(err *Error)
}

// ErrorLoggerFunc adapts a function to the ErrorLogger interface.
type ErrorLoggerFunc func(err *Error)

func (f ErrorLoggerFunc) LogError(err *Error) { f(err) }

// NopErrorLogger discards everything.
type NopErrorLogger struct{}

func (NopErrorLogger) LogError(*Error) {}

// ErrorList collects logged errors in order.
type ErrorList struct {
	mu   sync.Mutex
	errs []*Error
}

func (l *ErrorList) LogError(err *Error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

// Errors returns a copy of the collected errors.
func (l *ErrorList) Errors() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Error(nil), l.errs...)
}

// Count returns how many errors with the given code were logged.
func (l *ErrorList) Count(code emon.Err) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.errs {
		if e.Code == code {
			n++
		}
	}
	return n
}

// NewLogger builds the process logger. Development loggers write console
// output; production loggers write JSON. Both go to stderr so that stdout
// stays free for sample output.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// ZapErrorLogger writes error objects to a zap logger. Each error code has
// its own token bucket so a target overflowing on every poll cannot flood
// the log of a long capture session; the number of suppressed entries is
// attached to the next entry that gets through.
type ZapErrorLogger struct {
	log   *zap.Logger
	every rate.Limit
	burst int

	mu         sync.Mutex
	limiters   map[emon.Err]*rate.Limiter
	suppressed map[emon.Err]int
}

// NewZapErrorLogger creates an error logger. A zero interval disables rate
// limiting.
func NewZapErrorLogger(log *zap.Logger, interval time.Duration, burst int) *ZapErrorLogger {
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &ZapErrorLogger{
		log:        log,
		every:      every,
		burst:      burst,
		limiters:   make(map[emon.Err]*rate.Limiter),
		suppressed: make(map[emon.Err]int),
	}
}

func (z *ZapErrorLogger) LogError(err *Error) {
	if err == nil {
		return
	}

	z.mu.Lock()
	lim, ok := z.limiters[err.Code]
	if !ok {
		lim = rate.NewLimiter(z.every, z.burst)
		z.limiters[err.Code] = lim
	}
	if !lim.Allow() {
		z.suppressed[err.Code]++
		z.mu.Unlock()
		return
	}
	suppressed := z.suppressed[err.Code]
	delete(z.suppressed, err.Code)
	z.mu.Unlock()

	fields := []zap.Field{
		zap.String("code", err.Code.Error()),
	}
	if err.Idx != emon.BadRecordIndex {
		fields = append(fields, zap.Uint64("record_index", err.Idx))
	}
	if err.Err != nil {
		fields = append(fields, zap.Error(err.Err))
	}
	if suppressed > 0 {
		fields = append(fields, zap.Int("suppressed", suppressed))
	}

	msg := err.Message
	if msg == "" {
		msg = errorCodeDesc[err.Code]
	}

	switch err.Sev {
	case emon.ErrSevError:
		z.log.Error(msg, fields...)
	case emon.ErrSevWarn:
		z.log.Warn(msg, fields...)
	default:
		z.log.Info(msg, fields...)
	}
}
