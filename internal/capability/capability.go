// Package capability describes the device a schedule is synthesized for.
// A Capability is a read-only snapshot passed by value into every
// scheduling call.
package capability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBlockBytes is the DMA/vector block granularity.
const DefaultBlockBytes = 32

type Capability struct {
	Name string `yaml:"name" json:"name"`
	// ScratchpadBytes is the on-chip buffer available to one core.
	ScratchpadBytes int64 `yaml:"scratchpad_bytes" json:"scratchpad_bytes"`
	CoreNum         int   `yaml:"core_num" json:"core_num"`
	BlockBytes      int   `yaml:"block_bytes" json:"block_bytes"`
	// Generation selects instruction variants (rounding conversions).
	Generation int `yaml:"generation" json:"generation"`
	// AtomicAdd allows float32 partial results to be combined in global memory.
	AtomicAdd bool `yaml:"atomic_add" json:"atomic_add"`
	// DirectF32ToS8 exposes a single float32 to int8 conversion.
	DirectF32ToS8 bool `yaml:"direct_f32_to_s8" json:"direct_f32_to_s8"`
}

var ErrUnknownProfile = errors.New("unknown capability profile")

var builtin = []Capability{
	{Name: "edge", ScratchpadBytes: 248 * 1024, CoreNum: 2, BlockBytes: DefaultBlockBytes, Generation: 1},
	{Name: "cloud", ScratchpadBytes: 248 * 1024, CoreNum: 32, BlockBytes: DefaultBlockBytes, Generation: 2, AtomicAdd: true},
	{Name: "lite", ScratchpadBytes: 192 * 1024, CoreNum: 8, BlockBytes: DefaultBlockBytes, Generation: 3, AtomicAdd: true, DirectF32ToS8: true},
}

// DefaultProfile is used when nothing is configured.
const DefaultProfile = "cloud"

// Validate checks the snapshot can drive a schedule.
func (c Capability) Validate() error {
	if c.CoreNum < 1 {
		return fmt.Errorf("capability %q: core_num must be positive, got %d", c.Name, c.CoreNum)
	}
	if c.BlockBytes < 1 {
		return fmt.Errorf("capability %q: block_bytes must be positive, got %d", c.Name, c.BlockBytes)
	}
	if c.ScratchpadBytes < int64(c.BlockBytes) {
		return fmt.Errorf("capability %q: scratchpad of %d bytes is smaller than one block", c.Name, c.ScratchpadBytes)
	}
	return nil
}

// WithDefaults fills zero fields that have a sensible default.
func (c Capability) WithDefaults() Capability {
	if c.BlockBytes == 0 {
		c.BlockBytes = DefaultBlockBytes
	}
	if c.Generation == 0 {
		c.Generation = 1
	}
	return c
}

// Registry resolves profiles by name. Loaded profiles shadow built-ins.
type Registry struct {
	profiles map[string]Capability
}

func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Capability, len(builtin))}
	for _, c := range builtin {
		r.profiles[c.Name] = c
	}
	return r
}

func (r *Registry) Add(c Capability) error {
	c = c.WithDefaults()
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("capability profile without a name")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	r.profiles[c.Name] = c
	return nil
}

func (r *Registry) Lookup(name string) (Capability, error) {
	if name == "" {
		name = DefaultProfile
	}
	c, ok := r.profiles[name]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return c, nil
}

// All returns the profiles sorted by name.
func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.profiles))
	for _, c := range r.profiles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type profileFile struct {
	Profiles []Capability `yaml:"profiles"`
}

// LoadFile adds every profile of a YAML file to the registry.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles: %w", err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse profiles %s: %w", path, err)
	}
	for _, c := range pf.Profiles {
		if err := r.Add(c); err != nil {
			return fmt.Errorf("profiles %s: %w", path, err)
		}
	}
	return nil
}
