package common

import (
	"ethosumonitor/internal/emon"
)

// Component is the base struct for monitor pipeline components.
// It provides component naming and error logger attachment.
type Component struct {
	name         string
	errorLogger  ErrorLogger
	errVerbosity emon.ErrSeverity
}

// InitComponent initializes a Component. This is favored over a constructor
// so it can be safely embedded and initialized in place.
func (c *Component) InitComponent(name string) {
	c.name = name
	c.errVerbosity = emon.ErrSevWarn
}

// ComponentName returns the component's name.
func (c *Component) ComponentName() string {
	return c.name
}

// SetErrorLogger attaches the error logger. nil detaches it.
func (c *Component) SetErrorLogger(l ErrorLogger) {
	c.errorLogger = l
}

// ErrorLogger returns the attached error logger, if any.
func (c *Component) ErrorLogger() ErrorLogger {
	return c.errorLogger
}

// LogError logs an error if an error logger is attached and the severity
// passes the verbosity filter.
func (c *Component) LogError(err *Error) {
	if c.errorLogger == nil || err == nil || !c.IsLoggingErrorLevel(err.Sev) {
		return
	}
	c.errorLogger.LogError(err)
}

// ErrorLogLevel returns the current error log level.
func (c *Component) ErrorLogLevel() emon.ErrSeverity {
	return c.errVerbosity
}

// IsLoggingErrorLevel returns true if the level would be logged.
func (c *Component) IsLoggingErrorLevel(level emon.ErrSeverity) bool {
	return level != emon.ErrSevNone && level <= c.errVerbosity
}

// SetErrorLogLevel sets the verbosity of error logging.
func (c *Component) SetErrorLogLevel(level emon.ErrSeverity) {
	c.errVerbosity = level
}
