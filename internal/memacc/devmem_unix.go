//go:build unix

package memacc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// DefaultDevMem is the physical memory device.
const DefaultDevMem = "/dev/mem"

// DevMemAccessor reads target memory that the host sees at a physical
// address, translating device addresses to host addresses. The mapping is
// read only.
type DevMemAccessor struct {
	BaseAccessor
	path string
	host uint64
	f    *os.File
	mem  []byte
	skip uint64 // host - page aligned base
}

// NewDevMemAccessor maps size bytes of host physical memory at host so that
// they appear at target address device.
func NewDevMemAccessor(path string, host, device, size uint64) (*DevMemAccessor, error) {
	if size == 0 {
		return nil, common.Errorf(emon.ErrInvalidParamVal, "devmem: zero size mapping for device 0x%x", device)
	}

	page := uint64(os.Getpagesize())
	base := host &^ (page - 1)
	skip := host - base

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "devmem: open "+path)
	}

	mem, err := unix.Mmap(int(f.Fd()), int64(base), int(size+skip), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err,
			fmt.Sprintf("devmem: mmap 0x%x+%d", base, size+skip))
	}

	return &DevMemAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: device,
			EndAddress:   device + size - 1,
			AccType:      TypeDevMem,
		},
		path: path,
		host: host,
		f:    f,
		mem:  mem,
		skip: skip,
	}, nil
}

// ReadMemory implements the Reader interface. Device memory is read with
// single byte loads.
func (d *DevMemAccessor) ReadMemory(address uint64, reqBytes uint32) ([]byte, error) {
	if err := d.checkRead(address, reqBytes); err != nil {
		return nil, err
	}
	if d.mem == nil {
		return nil, transportErr(nil, "devmem: accessor closed")
	}
	start := d.skip + (address - d.StartAddress)
	data := make([]byte, reqBytes)
	for i := range data {
		data[i] = d.mem[start+uint64(i)]
	}
	return data, nil
}

func (d *DevMemAccessor) Close() error {
	var err error
	if d.mem != nil {
		err = unix.Munmap(d.mem)
		d.mem = nil
	}
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *DevMemAccessor) String() string {
	return fmt.Sprintf("%s; Host: 0x%X (%s)", d.BaseAccessor.String(), d.host, d.path)
}
