// Package anon implements anonymous (unnamed, unlinked) NUMA-bound
// allocations — Acquire and Release — for callers that need a scratch
// region without publishing a name in the shared-memory namespace.
package anon

import (
	"fmt"
	"math"
	"runtime"

	"github.com/penguintechinc/shmem-admin/internal/adminlock"
	"github.com/penguintechinc/shmem-admin/internal/pagemap"
	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/residency"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
	"github.com/penguintechinc/shmem-admin/internal/shmemlog"
	"github.com/penguintechinc/shmem-admin/internal/sysnuma"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// OnPolicyRestoreFailure, if non-nil, is called whenever Acquire fails to
// restore the calling thread's original NUMA memory policy during unwind.
// See lifecycle.OnPolicyRestoreFailure for the rationale; this is the same
// hook for the anonymous-allocation path.
var OnPolicyRestoreFailure func()

// Region is a live anonymous mapping returned by Acquire. Callers pass it
// back to Release verbatim; its fields are otherwise read-only to them.
type Region struct {
	Data   []byte
	pageSz pagesize.PageSize
}

// Acquire validates its arguments, binds this thread's memory policy to the
// NUMA node that owns cpuIdx, maps pageCnt pages of pageSz anonymously,
// pre-faults them with mlock, and validates residency against cpuIdx's node:
// cpuIdx itself is passed to residency.Validate, which derives the expected
// node as topo.NumaOf(cpuIdx); no representative CPU is substituted.
// The original memory policy is restored before returning, success or not.
func Acquire(topo *topology.Topology, log shmemlog.Logger, pageSz pagesize.PageSize, pageCnt uint64, cpuIdx uint) (*Region, error) {
	const op = "acquire"

	if !pagesize.IsValid(pageSz) {
		return nil, shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}
	maxCnt := uint64(math.MaxInt64) / uint64(pageSz)
	if pageCnt < 1 || pageCnt > maxCnt {
		return nil, shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_cnt %d", pageCnt))
	}
	if cpuIdx >= uint(topo.CpuCount()) {
		return nil, shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad cpu_idx %d", cpuIdx))
	}

	sz := pageCnt * uint64(pageSz)
	numaIdx := topo.NumaOf(cpuIdx)

	adminlock.Lock.Lock()
	defer adminlock.Lock.Unlock()

	// NUMA memory policy is per-OS-thread state; pin this goroutine for the
	// whole snapshot/bind/restore window.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origPolicy, perr := sysnuma.GetMempolicy()
	if perr != nil {
		return nil, shmemerr.New(op, shmemerr.IO, fmt.Errorf("get_mempolicy failed: %w", perr))
	}
	if err := sysnuma.BindNode(numaIdx); err != nil {
		return nil, shmemerr.New(op, shmemerr.IO, fmt.Errorf("set_mempolicy failed: %w", err))
	}

	var (
		result error
		mapped []byte
	)

	defer func() {
		if result != nil && mapped != nil {
			if err := pagemap.Unmap(mapped); err != nil {
				log.Warnf("acquire: munmap failed after error: %v; attempting to continue", err)
			}
		}
		if err := sysnuma.SetMempolicy(origPolicy); err != nil {
			log.Warnf("acquire: set_mempolicy restore failed: %v; attempting to continue", err)
			if OnPolicyRestoreFailure != nil {
				OnPolicyRestoreFailure()
			}
		}
	}()

	extraFlags, err := anonMmapFlags(pageSz)
	if err != nil {
		result = err
		return nil, err
	}

	mapped, err = pagemap.MapAnonymous(int(sz), extraFlags)
	if err != nil {
		result = shmemerr.New(op, shmemerr.NoMemory, fmt.Errorf("anonymous mmap(%d) failed: %w", sz, err))
		return nil, result
	}

	addr := pagemap.Addr(mapped)
	if !pagemap.IsPageAligned(addr, uint64(pageSz)) {
		result = shmemerr.New(op, shmemerr.CorruptMount, fmt.Errorf("anonymous mapping misaligned for page size %d", pageSz))
		return nil, result
	}

	if err := pagemap.Lock(mapped); err != nil {
		result = shmemerr.New(op, shmemerr.NoMemory, fmt.Errorf("mlock(%d) failed: %w", sz, err))
		return nil, result
	}

	if err := sysnuma.Mbind(addr, uintptr(sz), numaIdx, sysnuma.MbindMove|sysnuma.MbindStrict); err != nil {
		result = shmemerr.New(op, shmemerr.IO, fmt.Errorf("mbind(%d) failed: %w", sz, err))
		return nil, result
	}

	if err := residency.Validate(topo, addr, pageSz, pageCnt, cpuIdx); err != nil {
		log.Warnf("acquire: numa binding validation failed: %v", err)
		result = err
		return nil, err
	}

	return &Region{Data: mapped, pageSz: pageSz}, nil
}

// Release unmaps a region obtained from Acquire. It does not touch NUMA
// memory policy; Acquire always restores policy before returning, so there
// is nothing left to undo here.
func Release(r *Region) error {
	const op = "release"

	if r == nil || r.Data == nil {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("nil region"))
	}
	if err := pagemap.Unmap(r.Data); err != nil {
		return shmemerr.New(op, shmemerr.IO, fmt.Errorf("munmap failed: %w", err))
	}
	return nil
}

// anonMmapFlags maps a page size to the extra mmap(2) flags needed to back
// an anonymous mapping with huge or gigantic pages.
func anonMmapFlags(pageSz pagesize.PageSize) (int, error) {
	switch pageSz {
	case pagesize.Normal:
		return 0, nil
	case pagesize.Huge, pagesize.Gigantic:
		return pageSz.MmapFlags(), nil
	default:
		return 0, shmemerr.New("acquire", shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}
}
