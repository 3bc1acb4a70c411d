package common

import (
	"errors"
	"fmt"
	"strings"

	"ethosumonitor/internal/emon"
)

// Error represents the monitor error object.
// Recoverable diagnostics (overflow, reinit, sequencing) are reported with
// ErrSevWarn; anything reported with ErrSevError ends the current operation.
type Error struct {
	Code    emon.Err
	Sev     emon.ErrSeverity
	Idx     uint64
	Message string
	Err     error
}

func NewError(sev emon.ErrSeverity, code emon.Err) *Error {
	return &Error{
		Code: code,
		Sev:  sev,
		Idx:  emon.BadRecordIndex,
	}
}

func NewErrorMsg(sev emon.ErrSeverity, code emon.Err, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Idx:     emon.BadRecordIndex,
		Message: msg,
	}
}

func NewErrorWithIdxMsg(sev emon.ErrSeverity, code emon.Err, idx uint64, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Idx:     idx,
		Message: msg,
	}
}

// WrapError attaches a cause to a new error object.
func WrapError(sev emon.ErrSeverity, code emon.Err, err error, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Idx:     emon.BadRecordIndex,
		Message: msg,
		Err:     err,
	}
}

// Errorf builds an ErrSevError object with a formatted message.
func Errorf(code emon.Err, format string, args ...any) *Error {
	return NewErrorMsg(emon.ErrSevError, code, fmt.Sprintf(format, args...))
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	switch e.Sev {
	case emon.ErrSevError:
		sb.WriteString("ERROR:")
	case emon.ErrSevWarn:
		sb.WriteString("WARN :")
	case emon.ErrSevInfo:
		sb.WriteString("INFO :")
	default:
		return "MONITOR INTERNAL ERROR: Invalid Error Object"
	}

	sb.WriteString(fmt.Sprintf("0x%04x ", uint32(e.Code)))

	if desc, ok := errorCodeDesc[e.Code]; ok {
		sb.WriteString(fmt.Sprintf("(%s) [%s]; ", e.Code.Error(), desc))
	} else {
		sb.WriteString("(unknown); ")
	}

	if e.Idx != emon.BadRecordIndex {
		sb.WriteString(fmt.Sprintf("RecIdx=%d; ", e.Idx))
	}

	sb.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare emon.Err code so callers can write
// errors.Is(err, emon.ErrTransport).
func (e *Error) Is(target error) bool {
	code, ok := target.(emon.Err)
	return ok && code == e.Code
}

// CodeOf returns the code of the first *Error in the chain, or emon.ErrFail
// for foreign errors and emon.OK for nil.
func CodeOf(err error) emon.Err {
	if err == nil {
		return emon.OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return emon.ErrFail
}

// IsRecoverable reports whether processing may continue after err.
func IsRecoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Sev == emon.ErrSevWarn || e.Sev == emon.ErrSevInfo
}

var errorCodeDesc = map[emon.Err]string{
	emon.OK:                    "No Error.",
	emon.ErrFail:               "General failure.",
	emon.ErrNotInit:            "Component not initialised.",
	emon.ErrInvalidParamVal:    "Invalid value parameter passed to component.",
	emon.ErrFileError:          "File access error.",
	emon.ErrTransport:          "Target memory read failed.",
	emon.ErrDescriptorMismatch: "Event Recorder descriptor in image does not match target.",
	emon.ErrMalformedRecord:    "Fixed size structure read with wrong length.",
	emon.ErrRingOverflow:       "Ring buffer overflow - records lost.",
	emon.ErrReinitDetected:     "Event Recorder reinitialised on target.",
	emon.ErrSequencing:         "Unexpected record in sample sequence - sample discarded.",
	emon.ErrNotFound:           "Symbol not found.",
	emon.ErrNoMapping:          "No memory mapping for target address.",
	emon.ErrMemAccOverlap:      "Attempted to set an overlapping range in memory access map.",
	emon.ErrLast:               "No error - error code end marker",
}
