package models

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is a single hardware or software feature a worker can advertise.
type Capability uint64

const (
	CapabilityCUDA Capability = 1 << iota
	CapabilityOpenCL
	CapabilityFP16
	CapabilityINT8
	CapabilityNVLink
	CapabilityInfiniBand
	CapabilityTensorCores
	CapabilityMultiGPU
	CapabilityDistributed
	CapabilityCustom
)

// AllCapabilities lists every known capability. Matching and parsing iterate
// this table, so a new flag only needs an entry here.
var AllCapabilities = []struct {
	Flag Capability
	Name string
}{
	{CapabilityCUDA, "cuda"},
	{CapabilityOpenCL, "opencl"},
	{CapabilityFP16, "fp16"},
	{CapabilityINT8, "int8"},
	{CapabilityNVLink, "nvlink"},
	{CapabilityInfiniBand, "infiniband"},
	{CapabilityTensorCores, "tensor_cores"},
	{CapabilityMultiGPU, "multi_gpu"},
	{CapabilityDistributed, "distributed"},
	{CapabilityCustom, "custom"},
}

func (c Capability) String() string {
	for _, known := range AllCapabilities {
		if known.Flag == c {
			return known.Name
		}
	}
	return fmt.Sprintf("capability(%#x)", uint64(c))
}

// CapabilitySet is a set of capabilities.
type CapabilitySet uint64

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return uint64(s)&uint64(c) == uint64(c)
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

// Missing returns the capabilities in required that s does not have.
func (s CapabilitySet) Missing(required CapabilitySet) []Capability {
	var missing []Capability
	for _, known := range AllCapabilities {
		if required.Has(known.Flag) && !s.Has(known.Flag) {
			missing = append(missing, known.Flag)
		}
	}
	return missing
}

func (s CapabilitySet) Satisfies(required CapabilitySet) bool {
	return uint64(s)&uint64(required) == uint64(required)
}

// Valid reports whether every bit in s is a known capability.
func (s CapabilitySet) Valid() bool {
	var known CapabilitySet
	for _, c := range AllCapabilities {
		known |= CapabilitySet(c.Flag)
	}
	return s&^known == 0
}

func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(AllCapabilities))
	for _, known := range AllCapabilities {
		if s.Has(known.Flag) {
			names = append(names, known.Name)
		}
	}
	return names
}

func (s CapabilitySet) String() string {
	return strings.Join(s.Names(), ",")
}

// ParseCapabilities builds a set from capability names as used in the API.
func ParseCapabilities(names []string) (CapabilitySet, error) {
	var s CapabilitySet
	var unknown []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, known := range AllCapabilities {
			if known.Name == name {
				s = s.With(known.Flag)
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return 0, fmt.Errorf("unknown capabilities: %s", strings.Join(unknown, ", "))
	}
	return s, nil
}

// HardwareSpecs are the scalar resources a worker declares.
type HardwareSpecs struct {
	GPUMemoryGB   uint64 `json:"gpu_memory_gb"`
	CPUCores      uint64 `json:"cpu_cores"`
	RAMGB         uint64 `json:"ram_gb"`
	StorageGB     uint64 `json:"storage_gb"`
	BandwidthMbps uint64 `json:"bandwidth_mbps"`
}

func (h HardwareSpecs) IsZero() bool {
	return h == HardwareSpecs{}
}

// SpecDimension pairs a dimension name with its accessor.
type SpecDimension struct {
	Name  string
	Value func(HardwareSpecs) uint64
}

var SpecDimensions = []SpecDimension{
	{"gpu_memory_gb", func(h HardwareSpecs) uint64 { return h.GPUMemoryGB }},
	{"cpu_cores", func(h HardwareSpecs) uint64 { return h.CPUCores }},
	{"ram_gb", func(h HardwareSpecs) uint64 { return h.RAMGB }},
	{"storage_gb", func(h HardwareSpecs) uint64 { return h.StorageGB }},
	{"bandwidth_mbps", func(h HardwareSpecs) uint64 { return h.BandwidthMbps }},
}

// WorkerCapabilities is what a worker declares at registration.
type WorkerCapabilities struct {
	Flags    CapabilitySet `json:"flags"`
	Specs    HardwareSpecs `json:"specs"`
	GPUModel string        `json:"gpu_model,omitempty"`
	CPUModel string        `json:"cpu_model,omitempty"`
}

// JobRequirements are the minimums a job places on candidate workers.
type JobRequirements struct {
	Flags    CapabilitySet `json:"flags"`
	MinSpecs HardwareSpecs `json:"min_specs"`
}

// MeetsMinimums returns the first dimension below the requirement, if any.
func (r JobRequirements) MeetsMinimums(have HardwareSpecs) (string, bool) {
	for _, dim := range SpecDimensions {
		if dim.Value(have) < dim.Value(r.MinSpecs) {
			return dim.Name, false
		}
	}
	return "", true
}
