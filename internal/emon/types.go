package emon

// General monitor return and error codes

// Err represents the monitor error code type.
type Err uint32

const (
	OK                    Err = 0
	ErrFail               Err = 1
	ErrNotInit            Err = 2
	ErrInvalidParamVal    Err = 3
	ErrFileError          Err = 4
	ErrTransport          Err = 5
	ErrDescriptorMismatch Err = 6
	ErrMalformedRecord    Err = 7
	ErrRingOverflow       Err = 8
	ErrReinitDetected     Err = 9
	ErrSequencing         Err = 10
	ErrNotFound           Err = 11
	ErrNoMapping          Err = 12
	ErrMemAccOverlap      Err = 13
	ErrLast               Err = 14
)

// Error lets a bare code be used as an errors.Is target.
func (e Err) Error() string {
	if desc, ok := errNames[e]; ok {
		return desc
	}
	return "EMON_ERR_UNKNOWN"
}

var errNames = map[Err]string{
	OK:                    "EMON_OK",
	ErrFail:               "EMON_ERR_FAIL",
	ErrNotInit:            "EMON_ERR_NOT_INIT",
	ErrInvalidParamVal:    "EMON_ERR_INVALID_PARAM_VAL",
	ErrFileError:          "EMON_ERR_FILE_ERROR",
	ErrTransport:          "EMON_ERR_TRANSPORT",
	ErrDescriptorMismatch: "EMON_ERR_DESCRIPTOR_MISMATCH",
	ErrMalformedRecord:    "EMON_ERR_MALFORMED_RECORD",
	ErrRingOverflow:       "EMON_ERR_RING_OVERFLOW",
	ErrReinitDetected:     "EMON_ERR_REINIT_DETECTED",
	ErrSequencing:         "EMON_ERR_SEQUENCING",
	ErrNotFound:           "EMON_ERR_NOT_FOUND",
	ErrNoMapping:          "EMON_ERR_NO_MAPPING",
	ErrMemAccOverlap:      "EMON_ERR_MEM_ACC_OVERLAP",
	ErrLast:               "EMON_ERR_LAST",
}

// ErrSeverity used to indicate the severity of an error or logger verbosity
type ErrSeverity uint32

const (
	ErrSevNone  ErrSeverity = 0
	ErrSevError ErrSeverity = 1
	ErrSevWarn  ErrSeverity = 2
	ErrSevInfo  ErrSeverity = 3
)

// BadRecordIndex marks an error that is not tied to a ring buffer record.
const BadRecordIndex uint64 = ^uint64(0)
