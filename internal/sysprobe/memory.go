// Package sysprobe implements the OS memory probe eviction needs
// (C13, spec.md §4.8 "sample resident-set size (OS-specific probe)").
// Grounded on the pack's gopsutil dependency: the process package
// samples this process's own RSS rather than the teacher's eviction
// code, which has no memory sampling at all and evicts purely on a
// configured key-count ceiling.
package sysprobe

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// GopsutilProbe satisfies engine.MemoryProbe by sampling this
// process's resident set size through gopsutil/v4/process.
type GopsutilProbe struct {
	proc *process.Process
}

// NewGopsutilProbe binds the probe to the running process.
func NewGopsutilProbe() (*GopsutilProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("sysprobe: resolve self process: %w", err)
	}
	return &GopsutilProbe{proc: p}, nil
}

// ResidentBytes implements engine.MemoryProbe.
func (g *GopsutilProbe) ResidentBytes() (uint64, error) {
	info, err := g.proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("sysprobe: read memory info: %w", err)
	}
	return info.RSS, nil
}
