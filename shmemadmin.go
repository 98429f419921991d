// Package shmemadmin is the public facade over the shared-memory
// administration subsystem: NUMA topology discovery, named-region lifecycle
// (Create/Unlink/Info), and anonymous allocation (Acquire/Release). The
// topology and logger live in an Admin value. Every Admin shares the
// package-level state of the internal packages: the process-wide
// administration lock, the sysfs root set by topology.SetSysfsRoot, and the
// policy-restore-failure hooks that SetMetrics installs in internal/lifecycle
// and internal/anon. A single administrative domain per process is enforced
// at the lock layer, not by making Admin itself a singleton.
package shmemadmin

import (
	"time"

	"github.com/penguintechinc/shmem-admin/internal/anon"
	"github.com/penguintechinc/shmem-admin/internal/lifecycle"
	"github.com/penguintechinc/shmem-admin/internal/metrics"
	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/region"
	"github.com/penguintechinc/shmem-admin/internal/residency"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
	"github.com/penguintechinc/shmem-admin/internal/shmemlog"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// ErrKind is a stable error category, independent of the underlying kernel
// errno that produced it.
type ErrKind = shmemerr.Kind

const (
	ErrInvalidArg    = shmemerr.InvalidArg
	ErrNotFound      = shmemerr.NotFound
	ErrAlreadyExists = shmemerr.AlreadyExists
	ErrNoMemory      = shmemerr.NoMemory
	ErrWrongNode     = shmemerr.WrongNode
	ErrCorruptMount  = shmemerr.CorruptMount
	ErrIO            = shmemerr.IO
)

// KindOf extracts the stable ErrKind carried by err, or the zero value if
// err did not originate from this package.
func KindOf(err error) ErrKind { return shmemerr.KindOf(err) }

// IsKind reports whether err carries the given ErrKind.
func IsKind(err error, kind ErrKind) bool { return shmemerr.Is(err, kind) }

// PageSizeFromString parses a page size from its canonical name
// ("normal"/"huge"/"gigantic", case-insensitive), its log2 form, or its
// literal byte count, or returns PageSizeUnknown.
func PageSizeFromString(s string) PageSize { return pagesize.FromString(s) }

// Re-export the page size enum at the facade so callers never need to
// import internal/pagesize directly.
type PageSize = pagesize.PageSize

const (
	PageSizeUnknown  = pagesize.Unknown
	PageSizeNormal   = pagesize.Normal
	PageSizeHuge     = pagesize.Huge
	PageSizeGigantic = pagesize.Gigantic
)

// Info describes a named region's on-disk footprint.
type Info = lifecycle.Info

// Region is a live anonymous allocation obtained from Acquire.
type Region = anon.Region

// Admin is a booted NUMA/shared-memory administration handle. The zero
// value is not usable; construct one with New and call Boot before issuing
// any other operation.
type Admin struct {
	topo    *topology.Topology
	log     shmemlog.Logger
	metrics *metrics.Metrics
}

// New constructs an Admin that logs through log. Pass shmemlog.Nop{} if
// logging is not wired up yet.
func New(log shmemlog.Logger) *Admin {
	if log == nil {
		log = shmemlog.Nop{}
	}
	return &Admin{topo: &topology.Topology{}, log: log}
}

// SetMetrics wires m into every subsequent Create/Unlink/Info/Acquire/
// Release call so their outcome, latency, and the live region count are
// observable via m's Prometheus collectors. Metrics stay off (all calls are
// no-ops against m) until this is called; a diagnostics-only deployment
// that never calls it pays nothing for instrumentation.
func (a *Admin) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
	lifecycle.OnPolicyRestoreFailure = m.PolicyRestoreFailuresTotal.Inc
	anon.OnPolicyRestoreFailure = m.PolicyRestoreFailuresTotal.Inc
}

// observe records op's outcome and latency, and bumps ResidencyFailuresTotal
// when err is a wrong-node residency failure. No-op if metrics aren't wired.
func (a *Admin) observe(op string, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = shmemerr.KindOf(err).String()
		if shmemerr.Is(err, shmemerr.WrongNode) {
			a.metrics.ResidencyFailuresTotal.Inc()
		}
	}
	a.metrics.ObserveOperation(op, result, time.Since(start).Seconds())
}

// Boot discovers NUMA/CPU topology and resolves basePath as the root of the
// shared-memory mount hierarchy. It must be called exactly once before any
// other Admin method, and its failure is fatal to the process: the host
// cannot support the subsystem at all.
func (a *Admin) Boot(basePath string) error {
	return a.topo.Boot(basePath)
}

// Halt releases the topology tables. Behavior of calls made after Halt (and
// before a subsequent Boot) is undefined.
func (a *Admin) Halt() {
	a.topo.Halt()
}

// Booted reports whether Boot has completed successfully since the last Halt.
func (a *Admin) Booted() bool { return a.topo.Booted() }

// NumaCount returns the number of NUMA nodes discovered at boot.
func (a *Admin) NumaCount() int { return a.topo.NumaCount() }

// CpuCount returns the number of logical CPUs discovered at boot.
func (a *Admin) CpuCount() int { return a.topo.CpuCount() }

// NumaOf returns the NUMA node cpuIdx belongs to.
func (a *Admin) NumaOf(cpuIdx uint) uint { return a.topo.NumaOf(cpuIdx) }

// CpuOf returns the representative CPU of numaIdx.
func (a *Admin) CpuOf(numaIdx uint) uint { return a.topo.CpuOf(numaIdx) }

// Base returns the resolved shared-memory base path.
func (a *Admin) Base() string { return a.topo.Base() }

// Topology returns the underlying topology handle for read-only diagnostics
// use, e.g. the /readyz and /topology endpoints. Callers must not Boot or
// Halt it; Admin owns its lifecycle.
func (a *Admin) Topology() *topology.Topology { return a.topo }

// NameValid reports whether name satisfies the region name grammar.
func NameValid(name string) bool { return region.ValidateName(name) > 0 }

// Create creates and NUMA-binds a new named region. See internal/lifecycle
// for the exact unwind semantics on failure.
func (a *Admin) Create(name string, pageSz PageSize, pageCnt uint64, cpuIdx uint, mode uint32) error {
	start := time.Now()
	err := lifecycle.Create(a.topo, a.log, name, pageSz, pageCnt, cpuIdx, mode)
	if err == nil && a.metrics != nil {
		a.metrics.RegionsActive.WithLabelValues(pageSz.String()).Inc()
	}
	a.observe("create", start, err)
	return err
}

// Unlink removes a named region's backing file.
func (a *Admin) Unlink(name string, pageSz PageSize) error {
	start := time.Now()
	err := lifecycle.Unlink(a.topo, name, pageSz)
	if err == nil && a.metrics != nil {
		a.metrics.RegionsActive.WithLabelValues(pageSz.String()).Dec()
	}
	a.observe("unlink", start, err)
	return err
}

// Info returns a named region's page size and page count. Pass
// PageSizeUnknown to probe gigantic, then huge, then normal.
func (a *Admin) Info(name string, pageSz PageSize) (Info, error) {
	start := time.Now()
	info, err := lifecycle.GetInfo(a.topo, name, pageSz)
	a.observe("info", start, err)
	return info, err
}

// ValidateNuma asserts that every page of the pageCnt pages of pageSz
// starting at addr is resident on the NUMA node that owns cpuIdx.
func (a *Admin) ValidateNuma(addr uintptr, pageSz PageSize, pageCnt uint64, cpuIdx uint) error {
	return residency.Validate(a.topo, addr, pageSz, pageCnt, cpuIdx)
}

// Acquire maps an anonymous, unnamed region bound to the NUMA node that
// owns cpuIdx.
func (a *Admin) Acquire(pageSz PageSize, pageCnt uint64, cpuIdx uint) (*Region, error) {
	start := time.Now()
	r, err := anon.Acquire(a.topo, a.log, pageSz, pageCnt, cpuIdx)
	a.observe("acquire", start, err)
	return r, err
}

// Release unmaps a region obtained from Acquire.
func (a *Admin) Release(r *Region) error {
	start := time.Now()
	err := anon.Release(r)
	a.observe("release", start, err)
	return err
}
