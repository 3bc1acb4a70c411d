// Package memmap loads the memory map that tells the monitor where target
// memory can be read from.
//
// A map is a YAML (or JSON) document:
//
//	memoryMap:
//	  - host: "0x84000000"    # physical address seen by the host (/dev/mem)
//	    device: "0x20000000"  # address seen by the target
//	    size: "0x100000"
//	  - device: "0x30000000"  # region backed by a captured memory image
//	    file: sram.bin
//	    offset: 0x1000
//
// Quoted numbers are hexadecimal with or without the 0x prefix; unquoted
// numbers are decimal unless prefixed.
package memmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ethosumonitor/internal/common"
	"ethosumonitor/internal/emon"
	"ethosumonitor/internal/memacc"
)

// Hex is an address or size that accepts hex strings in the map file.
type Hex uint64

func (h *Hex) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number, got %s", node.Line, node.ShortTag())
	}

	s := strings.TrimSpace(node.Value)
	var (
		v   uint64
		err error
	)
	if node.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		v, err = strconv.ParseUint(s, 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 0, 64)
	}
	if err != nil {
		return fmt.Errorf("line %d: invalid number %q", node.Line, node.Value)
	}
	*h = Hex(v)
	return nil
}

func (h Hex) MarshalYAML() (any, error) {
	return fmt.Sprintf("0x%x", uint64(h)), nil
}

func (h Hex) String() string { return fmt.Sprintf("0x%x", uint64(h)) }

// Region maps one range of target addresses.
type Region struct {
	// Host is the physical address of the region on the host. Ignored for
	// file backed regions.
	Host   Hex    `yaml:"host,omitempty"`
	Device Hex    `yaml:"device"`
	Size   Hex    `yaml:"size,omitempty"`
	File   string `yaml:"file,omitempty"`
	Offset Hex    `yaml:"offset,omitempty"`
}

// Map is a parsed memory map file.
type Map struct {
	Regions []Region `yaml:"memoryMap"`

	// Dir is the directory of the map file; relative image paths are
	// resolved against it.
	Dir string `yaml:"-"`
}

// Load reads and validates a memory map file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrFileError, err, "memory map")
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes and validates a memory map document.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, common.WrapError(emon.ErrSevError, emon.ErrInvalidParamVal, err, "memory map")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every region has a size (or an image to take it
// from) and that device ranges do not overlap.
func (m *Map) Validate() error {
	if len(m.Regions) == 0 {
		return common.Errorf(emon.ErrInvalidParamVal, "memory map has no regions")
	}
	for i, r := range m.Regions {
		if r.Size == 0 && r.File == "" {
			return common.Errorf(emon.ErrInvalidParamVal, "region %d (device %s): size required", i, r.Device)
		}
		if r.Size == 0 {
			continue
		}
		for j := 0; j < i; j++ {
			o := m.Regions[j]
			if o.Size != 0 && r.Device < o.Device+o.Size && o.Device < r.Device+r.Size {
				return common.Errorf(emon.ErrMemAccOverlap, "region %d (device %s) overlaps region %d (device %s)",
					i, r.Device, j, o.Device)
			}
		}
	}
	return nil
}

// Options control how regions are turned into accessors.
type Options struct {
	// DevMem is the physical memory device. Defaults to memacc.DefaultDevMem.
	DevMem string
}

// Build opens an accessor per region and returns them in a mapper. On
// error every accessor opened so far is closed.
func (m *Map) Build(opts Options) (*memacc.Mapper, error) {
	if opts.DevMem == "" {
		opts.DevMem = memacc.DefaultDevMem
	}

	mapper := memacc.NewMapper()
	for i, r := range m.Regions {
		acc, err := m.open(r, opts)
		if err == nil {
			err = mapper.AddAccessor(acc)
			if err != nil {
				if c, ok := acc.(interface{ Close() error }); ok {
					c.Close()
				}
			}
		}
		if err != nil {
			mapper.Close()
			return nil, fmt.Errorf("memory map region %d: %w", i, err)
		}
	}
	return mapper, nil
}

func (m *Map) open(r Region, opts Options) (memacc.Accessor, error) {
	if r.File != "" {
		path := r.File
		if !filepath.IsAbs(path) && m.Dir != "" {
			path = filepath.Join(m.Dir, path)
		}
		return memacc.NewFileAccessor(path, uint64(r.Device), int64(r.Offset), int64(r.Size))
	}
	return memacc.NewDevMemAccessor(opts.DevMem, uint64(r.Host), uint64(r.Device), uint64(r.Size))
}
