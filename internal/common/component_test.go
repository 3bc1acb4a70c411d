package common

import (
	"testing"

	"ethosumonitor/internal/emon"
)

func TestComponentLogging(t *testing.T) {
	var c Component
	c.InitComponent("consumer")
	if c.ComponentName() != "consumer" {
		t.Errorf("expected name consumer, got %s", c.ComponentName())
	}

	// No logger attached
	c.LogError(NewError(emon.ErrSevError, emon.ErrFail))

	list := &ErrorList{}
	c.SetErrorLogger(list)

	c.LogError(NewError(emon.ErrSevError, emon.ErrTransport))
	c.LogError(NewError(emon.ErrSevWarn, emon.ErrRingOverflow))
	c.LogError(NewError(emon.ErrSevInfo, emon.ErrReinitDetected))
	c.LogError(nil)

	if got := len(list.Errors()); got != 2 {
		t.Fatalf("expected 2 logged errors at default level, got %d", got)
	}

	c.SetErrorLogLevel(emon.ErrSevInfo)
	c.LogError(NewError(emon.ErrSevInfo, emon.ErrReinitDetected))
	if list.Count(emon.ErrReinitDetected) != 1 {
		t.Errorf("expected info error to be logged at info level")
	}

	c.SetErrorLogLevel(emon.ErrSevError)
	if c.IsLoggingErrorLevel(emon.ErrSevWarn) {
		t.Errorf("warnings should be filtered at error level")
	}
	if c.ErrorLogLevel() != emon.ErrSevError {
		t.Errorf("unexpected log level %d", c.ErrorLogLevel())
	}
}
