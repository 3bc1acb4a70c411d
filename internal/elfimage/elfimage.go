// Package elfimage resolves symbols and initial data in a linked firmware
// image.
package elfimage

import (
	"debug/elf"
	"errors"

	"golang.org/x/exp/mmap"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
)

// Image is an opened ELF file.
type Image struct {
	path string
	r    *mmap.ReaderAt
	f    *elf.File
	syms []elf.Symbol
}

// Open maps and parses the ELF file at path.
func Open(path string) (*Image, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "elf image "+path)
	}
	f, err := elf.NewFile(r)
	if err != nil {
		r.Close()
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "elf image "+path)
	}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		f.Close()
		r.Close()
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "elf symbols "+path)
	}
	return &Image{path: path, r: r, f: f, syms: syms}, nil
}

func (img *Image) Path() string { return img.path }

// Symbol returns the address and size of the named symbol.
func (img *Image) Symbol(name string) (uint64, uint64, error) {
	for _, s := range img.syms {
		if s.Name == name && s.Section != elf.SHN_UNDEF {
			return s.Value, s.Size, nil
		}
	}
	return 0, 0, common.Errorf(emon.ErrNotFound, "symbol %s not found in %s", name, img.path)
}

// SymbolData returns the initial contents of the named symbol.
func (img *Image) SymbolData(name string) ([]byte, error) {
	addr, size, err := img.Symbol(name)
	if err != nil {
		return nil, err
	}
	return img.ReadMemory(addr, uint32(size))
}

// ReadMemory reads size bytes of initial data at addr from the section that
// contains the whole range. Sections without file data (.bss) are not
// readable.
func (img *Image) ReadMemory(addr uint64, size uint32) ([]byte, error) {
	end := addr + uint64(size)
	for _, s := range img.f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		if addr < s.Addr || end > s.Addr+s.Size {
			continue
		}
		data := make([]byte, size)
		if _, err := s.ReadAt(data, int64(addr-s.Addr)); err != nil {
			return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "section "+s.Name)
		}
		return data, nil
	}
	return nil, common.Errorf(emon.ErrNotFound, "no section with data for 0x%x+%d in %s", addr, size, img.path)
}

func (img *Image) Close() error {
	img.f.Close()
	return img.r.Close()
}
