// Package topology discovers and holds the NUMA/CPU topology and the
// shared-memory base path, once, at process boot. The tables it builds are
// immutable thereafter; callers need no lock of their own to read them, as
// every accessor serializes on the Topology's internal mutex.
package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
)

// Compile-time bounds on the topology tables.
const (
	// NumaMax bounds the number of NUMA nodes this subsystem can track.
	NumaMax = 64
	// CpuMax bounds the number of logical CPUs this subsystem can track.
	CpuMax = 1024
	// BaseMax bounds the length of the configured shared-memory base path.
	BaseMax = 200
)

const sentinel = ^uint(0) // returned by NumaOf/CpuOf on out-of-range input

// Topology holds the immutable-after-boot NUMA/CPU tables and the
// shared-memory base path. The zero value is not booted.
type Topology struct {
	mu sync.Mutex

	booted    bool
	numaCnt   int
	cpuCnt    int
	numaOfCPU []uint // index: cpu, value: numa node
	cpuOfNuma []uint // index: numa node, value: representative cpu
	base      string
}

// sysfsRoot is the root of the kernel's NUMA topology tables. Overridden in
// tests so Boot can run against a synthetic tree instead of the host's, and
// by cmd/shmem-admin when FD_NUMA_SYSFS_ROOT is set.
var sysfsRoot = "/sys/devices/system/node"

// SetSysfsRoot overrides the root of the kernel's NUMA topology tables used
// by the next Boot call. Must be called before Boot.
func SetSysfsRoot(root string) { sysfsRoot = root }

// Boot performs topology discovery and base-path resolution, in order:
//  1. probe NUMA availability (fatal if unsupported);
//  2. read the configured node count and CPU count (fatal if out of range);
//  3. for each CPU index from high to low, query its owning NUMA node and
//     populate both directional tables — descending order means the last
//     writer for each NUMA node (the lowest-numbered CPU on that node) wins
//     the "representative CPU" slot;
//  4. read and trim the configured base path.
//
// Boot failures indicate the host cannot support the subsystem at all, so
// Boot returns an error rather than panicking, and callers are expected to
// log it and exit.
func (t *Topology) Boot(basePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.booted {
		return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("topology already booted"))
	}

	nodeDirs, err := discoverNodes(sysfsRoot)
	if err != nil {
		return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("numa unavailable: %w", err))
	}

	numaCnt := len(nodeDirs)
	if numaCnt < 1 || numaCnt > NumaMax {
		return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("unexpected numa_cnt %d (expected in [1,%d])", numaCnt, NumaMax))
	}

	numaOfCPU := make([]uint, CpuMax)
	for i := range numaOfCPU {
		numaOfCPU[i] = sentinel
	}

	cpuCnt := 0
	for nodeIdx, dir := range nodeDirs {
		cpus, err := readCPUList(filepath.Join(sysfsRoot, dir, "cpulist"))
		if err != nil {
			return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("reading cpulist for %s: %w", dir, err))
		}
		for _, cpu := range cpus {
			if cpu < 0 || cpu >= CpuMax {
				return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("cpu index %d out of range [0,%d)", cpu, CpuMax))
			}
			numaOfCPU[cpu] = uint(nodeIdx)
			if cpu+1 > cpuCnt {
				cpuCnt = cpu + 1
			}
		}
	}

	if cpuCnt < 1 || cpuCnt > CpuMax {
		return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("unexpected cpu_cnt %d (expected in [1,%d])", cpuCnt, CpuMax))
	}

	cpuOfNuma := make([]uint, numaCnt)
	for i := range cpuOfNuma {
		cpuOfNuma[i] = sentinel
	}

	// Descending order: the last writer for each NUMA node is the
	// lowest-numbered CPU on that node.
	for cpu := cpuCnt - 1; cpu >= 0; cpu-- {
		numaIdx := numaOfCPU[cpu]
		if numaIdx == sentinel {
			continue
		}
		if int(numaIdx) >= numaCnt {
			return shmemerr.New("boot", shmemerr.IO, fmt.Errorf("unexpected numa idx %d for cpu idx %d", numaIdx, cpu))
		}
		cpuOfNuma[numaIdx] = uint(cpu)
	}

	base, err := resolveBase(basePath)
	if err != nil {
		return err
	}

	t.numaCnt = numaCnt
	t.cpuCnt = cpuCnt
	t.numaOfCPU = numaOfCPU[:cpuCnt]
	t.cpuOfNuma = cpuOfNuma
	t.base = base
	t.booted = true

	return nil
}

// Halt zeroes the topology tables and clears the base path. Behavior of
// calls made before Boot or after Halt is undefined; callers are expected
// to be guarded by the hosting runtime.
func (t *Topology) Halt() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.numaCnt = 0
	t.cpuCnt = 0
	t.numaOfCPU = nil
	t.cpuOfNuma = nil
	t.base = ""
	t.booted = false
}

// NumaCount returns the number of NUMA nodes discovered at boot.
func (t *Topology) NumaCount() int { t.mu.Lock(); defer t.mu.Unlock(); return t.numaCnt }

// CpuCount returns the number of logical CPUs discovered at boot.
func (t *Topology) CpuCount() int { t.mu.Lock(); defer t.mu.Unlock(); return t.cpuCnt }

// Base returns the trimmed shared-memory base path resolved at boot.
func (t *Topology) Base() string { t.mu.Lock(); defer t.mu.Unlock(); return t.base }

// Booted reports whether Boot has completed successfully since the last Halt.
func (t *Topology) Booted() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.booted }

// NumaOf returns the NUMA node cpuIdx belongs to, or a sentinel value
// (compare with NumaCount(), which it will always be >=) on out-of-range
// input.
func (t *Topology) NumaOf(cpuIdx uint) uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cpuIdx >= uint(t.cpuCnt) {
		return sentinel
	}
	return t.numaOfCPU[cpuIdx]
}

// CpuOf returns the representative (lowest-numbered) CPU of numaIdx, or a
// sentinel value on out-of-range input.
func (t *Topology) CpuOf(numaIdx uint) uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if numaIdx >= uint(t.numaCnt) {
		return sentinel
	}
	return t.cpuOfNuma[numaIdx]
}

// Sentinel is the out-of-range return value shared by NumaOf and CpuOf.
func Sentinel() uint { return sentinel }

func discoverNodes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var nodes []struct {
		name string
		idx  int
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		idxStr := strings.TrimPrefix(e.Name(), "node")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		nodes = append(nodes, struct {
			name string
			idx  int
		}{e.Name(), idx})
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("no NUMA node entries under %s", root)
	}

	// Sort by node index so nodeDirs[i] really is node i.
	sorted := make([]string, 0, len(nodes))
	byIdx := make(map[int]string, len(nodes))
	maxIdx := -1
	for _, n := range nodes {
		byIdx[n.idx] = n.name
		if n.idx > maxIdx {
			maxIdx = n.idx
		}
	}
	for i := 0; i <= maxIdx; i++ {
		name, ok := byIdx[i]
		if !ok {
			return nil, fmt.Errorf("missing node%d entry under %s", i, root)
		}
		sorted = append(sorted, name)
	}

	return sorted, nil
}

func readCPUList(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCPUList(strings.TrimSpace(string(data)))
}

// parseCPUList parses a cpulist string such as "0-3,8-11" into a slice of
// individual CPU indices.
func parseCPUList(s string) ([]int, error) {
	var cpus []int
	if s == "" {
		return cpus, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '-'); idx >= 0 {
			start, err := strconv.Atoi(part[:idx])
			if err != nil {
				return nil, fmt.Errorf("bad cpu range %q: %w", part, err)
			}
			end, err := strconv.Atoi(part[idx+1:])
			if err != nil {
				return nil, fmt.Errorf("bad cpu range %q: %w", part, err)
			}
			for c := start; c <= end; c++ {
				cpus = append(cpus, c)
			}
		} else {
			c, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("bad cpu index %q: %w", part, err)
			}
			cpus = append(cpus, c)
		}
	}

	return cpus, nil
}

// resolveBase trims trailing slashes from basePath and enforces length
// bounds.
func resolveBase(basePath string) (string, error) {
	n := len(basePath)
	for n > 1 && basePath[n-1] == '/' {
		n--
	}
	trimmed := basePath[:n]

	if len(trimmed) == 0 {
		return "", shmemerr.New("boot", shmemerr.InvalidArg, fmt.Errorf("too short --shmem-path"))
	}
	if len(trimmed) >= BaseMax {
		return "", shmemerr.New("boot", shmemerr.InvalidArg, fmt.Errorf("too long --shmem-path"))
	}

	return trimmed, nil
}
