//go:build !unix

package memacc

import (
	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

const DefaultDevMem = "/dev/mem"

type DevMemAccessor struct {
	BaseAccessor
}

func NewDevMemAccessor(path string, host, device, size uint64) (*DevMemAccessor, error) {
	return nil, common.Errorf(emon.ErrInvalidParamVal, "devmem: physical memory access is not supported on this platform")
}

func (d *DevMemAccessor) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	return nil, transportErr(nil, "devmem: not supported")
}

func (d *DevMemAccessor) Close() error { return nil }
