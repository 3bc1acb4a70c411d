// Package elftest writes minimal firmware images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"ethosumonitor/internal/evr"
)

// InfoOffset is the offset of the EventRecorderInfo object in .data.
const InfoOffset = 8

// WriteImage writes an ARM ELF32 holding one .data section at dataAddr with
// an EventRecorderInfo object InfoOffset bytes in, and returns its path.
func WriteImage(t testing.TB, dataAddr uint32, info evr.Info) string {
	t.Helper()

	enc := info.Encode()
	data := make([]byte, InfoOffset, 32)
	data = append(data, enc[:]...)

	strtab := []byte("\x00" + evr.InfoSymbol + "\x00")
	shstrtab := []byte("\x00.data\x00.symtab\x00.strtab\x00.shstrtab\x00")

	const ehsize = 52
	dataOff := uint32(ehsize)
	symOff := dataOff + uint32(len(data))
	strOff := symOff + 2*16
	shstrOff := strOff + uint32(len(strtab))
	shOff := (shstrOff + uint32(len(shstrtab)) + 3) &^ 3

	var buf bytes.Buffer
	le := binary.LittleEndian
	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    ehsize,
		Phentsize: 32,
		Shentsize: 40,
		Shnum:     5,
		Shstrndx:  4,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	must(t, binary.Write(&buf, le, hdr))

	buf.Write(data)
	must(t, binary.Write(&buf, le, elf.Sym32{}))
	must(t, binary.Write(&buf, le, elf.Sym32{
		Name:  1,
		Value: dataAddr + InfoOffset,
		Size:  evr.InfoSize,
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
		Shndx: 1,
	}))
	buf.Write(strtab)
	buf.Write(shstrtab)
	for uint32(buf.Len()) < shOff {
		buf.WriteByte(0)
	}

	sections := []elf.Section32{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint32(elf.SHF_ALLOC | elf.SHF_WRITE),
			Addr: dataAddr, Off: dataOff, Size: uint32(len(data)), Addralign: 4},
		{Name: 7, Type: uint32(elf.SHT_SYMTAB), Off: symOff, Size: 32, Link: 3, Info: 1, Addralign: 4, Entsize: 16},
		{Name: 15, Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint32(len(strtab)), Addralign: 1},
		{Name: 23, Type: uint32(elf.SHT_STRTAB), Off: shstrOff, Size: uint32(len(shstrtab)), Addralign: 1},
	}
	for _, s := range sections {
		must(t, binary.Write(&buf, le, s))
	}

	path := filepath.Join(t.TempDir(), "firmware.elf")
	must(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
