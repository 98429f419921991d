// Package lifecycle implements the named-region lifecycle operations —
// Create, Unlink, and Info — against huge-page filesystem entries with
// NUMA binding and pre-faulting.
package lifecycle

import (
	"fmt"
	"math"
	"runtime"

	"github.com/penguintechinc/shmem-admin/internal/adminlock"
	"github.com/penguintechinc/shmem-admin/internal/pagemap"
	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/region"
	"github.com/penguintechinc/shmem-admin/internal/residency"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
	"github.com/penguintechinc/shmem-admin/internal/shmemlog"
	"github.com/penguintechinc/shmem-admin/internal/sysnuma"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// OnPolicyRestoreFailure, if non-nil, is called whenever Create fails to
// restore the calling thread's original NUMA memory policy during unwind —
// the single most dangerous failure mode this subsystem has, since it
// silently poisons every later allocation the caller's thread makes.
// Logging already records each occurrence; this hook lets callers (e.g. the
// shmemadmin facade, when metrics are wired) alert on it without scraping
// logs.
var OnPolicyRestoreFailure func()

// maxMode is the widest POSIX permission-bits value open(2) understands,
// mirroring the original's "mode != (ulong)(mode_t)mode" range check
// narrowed to the 12 low bits that are meaningful for a regular file.
const maxMode = 0o7777

// Info is the region metadata returned by Info: its page size and the
// number of pages it spans.
type Info struct {
	PageSz  pagesize.PageSize
	PageCnt uint64
}

// Create validates its arguments, then under the administration lock:
// snapshots the calling thread's NUMA memory policy, binds it to the target
// node, exclusively creates and sizes the backing file, maps it read-write
// shared, pre-faults it with mlock, re-binds the mapping itself with mbind
// so the binding survives unmap, and validates residency. Every exit path
// unmaps, conditionally unlinks (only if the call is failing), closes the
// descriptor, and restores the original memory policy, in that order.
func Create(topo *topology.Topology, log shmemlog.Logger, name string, pageSz pagesize.PageSize, pageCnt uint64, cpuIdx uint, mode uint32) error {
	const op = "create"

	if region.ValidateName(name) == 0 {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad name %q", name))
	}
	if !pagesize.IsValid(pageSz) {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}
	maxCnt := uint64(math.MaxInt64) / uint64(pageSz)
	if pageCnt < 1 || pageCnt > maxCnt {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_cnt %d", pageCnt))
	}
	if cpuIdx >= uint(topo.CpuCount()) {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad cpu_idx %d", cpuIdx))
	}
	if mode > maxMode {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad mode 0%o", mode))
	}

	sz := pageCnt * uint64(pageSz)
	numaIdx := topo.NumaOf(cpuIdx)

	adminlock.Lock.Lock()
	defer adminlock.Lock.Unlock()

	// NUMA memory policy is per-OS-thread state; pin this goroutine so the
	// thread whose policy we snapshot, bind, and restore is the thread every
	// intervening allocation happens on.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Save this thread's NUMA memory policy and bind newly created memory
	// to numaIdx. This forces page allocation onto the desired node even
	// if the create/truncate/mmap sequence preemptively allocates pages
	// (e.g. under mlockall(MCL_FUTURE)); a request-level mbind after the
	// fact is advisory at best.
	origPolicy, perr := sysnuma.GetMempolicy()
	if perr != nil {
		return shmemerr.New(op, shmemerr.IO, fmt.Errorf("get_mempolicy failed: %w", perr))
	}
	if err := sysnuma.BindNode(numaIdx); err != nil {
		return shmemerr.New(op, shmemerr.IO, fmt.Errorf("set_mempolicy failed: %w", err))
	}

	var (
		result error
		fd     = -1
		mapped []byte
		path   string
	)

	defer func() {
		if mapped != nil {
			if err := pagemap.Unmap(mapped); err != nil {
				log.Warnf("create(%q): munmap failed: %v; attempting to continue", name, err)
			}
		}
		if result != nil && fd >= 0 {
			if err := pagemap.Unlink(path); err != nil {
				log.Warnf("create(%q): unlink(%q) failed: %v", name, path, err)
			}
		}
		if fd >= 0 {
			if err := pagemap.Close(fd); err != nil {
				log.Warnf("create(%q): close(%q) failed: %v; attempting to continue", name, path, err)
			}
		}
		if err := sysnuma.SetMempolicy(origPolicy); err != nil {
			log.Warnf("create(%q): set_mempolicy restore failed: %v; attempting to continue", name, err)
			if OnPolicyRestoreFailure != nil {
				OnPolicyRestoreFailure()
			}
		}
	}()

	var err error
	path, err = region.ResolvePath(topo.Base(), pageSz, name)
	if err != nil {
		result = err
		return err
	}

	fd, err = pagemap.CreateExclusive(path, mode)
	if err != nil {
		if pagemap.IsExist(err) {
			result = shmemerr.New(op, shmemerr.AlreadyExists, err)
		} else {
			result = shmemerr.New(op, shmemerr.IO, fmt.Errorf("open(%q,O_CREAT|O_EXCL,0%03o) failed: %w", path, mode, err))
		}
		return result
	}

	if err := pagemap.Truncate(fd, int64(sz)); err != nil {
		result = shmemerr.New(op, shmemerr.IO, fmt.Errorf("ftruncate(%q,%d) failed: %w", path, sz, err))
		return result
	}

	mapped, err = pagemap.MapShared(fd, int(sz))
	if err != nil {
		result = shmemerr.New(op, shmemerr.IO, fmt.Errorf("mmap(%q,%d) failed: %w", path, sz, err))
		return result
	}

	addr := pagemap.Addr(mapped)
	if !pagemap.IsPageAligned(addr, uint64(pageSz)) {
		result = shmemerr.New(op, shmemerr.CorruptMount, fmt.Errorf(
			"misaligned mapping for %q; the shared-memory mount at %q has probably been corrupted and needs to be redone", path, topo.Base()))
		return result
	}

	// mmap alone does not guarantee physical allocation; mlock forces the
	// kernel to back the mapping now, failing synchronously with ENOMEM
	// if the target node lacks sufficient huge pages, instead of an
	// asynchronous SIGBUS on first touch.
	// TODO: confirm whether a local touch of each page is still required
	// after mlock under the bound policy, or if mlock alone suffices.
	if err := pagemap.Lock(mapped); err != nil {
		result = shmemerr.New(op, shmemerr.NoMemory, fmt.Errorf("mlock(%q,%d) failed: %w", path, sz, err))
		return result
	}

	// Re-bind the mapping itself so the NUMA placement persists after
	// this process unmaps it.
	if err := sysnuma.Mbind(addr, uintptr(sz), numaIdx, sysnuma.MbindMove|sysnuma.MbindStrict); err != nil {
		result = shmemerr.New(op, shmemerr.IO, fmt.Errorf("mbind(%q,%d) failed: %w", path, sz, err))
		return result
	}

	// The kernel often treats post-allocation page migration requests as
	// best-effort, so double-check residency explicitly rather than trust
	// that mbind succeeded.
	if err := residency.Validate(topo, addr, pageSz, pageCnt, cpuIdx); err != nil {
		log.Warnf("create(%q): numa binding validation failed: %v", name, err)
		result = err
		return err
	}

	return nil
}

// Unlink validates name and page size, then removes the backing file.
func Unlink(topo *topology.Topology, name string, pageSz pagesize.PageSize) error {
	const op = "unlink"

	path, err := region.ResolvePath(topo.Base(), pageSz, name)
	if err != nil {
		return err
	}

	if err := pagemap.Unlink(path); err != nil {
		if pagemap.IsNotExist(err) {
			return shmemerr.New(op, shmemerr.NotFound, err)
		}
		return shmemerr.New(op, shmemerr.IO, fmt.Errorf("unlink(%q) failed: %w", path, err))
	}

	return nil
}

// GetInfo validates name. If pageSz is pagesize.Unknown, it probes
// gigantic, then huge, then normal, in that order, returning the first hit;
// otherwise it validates pageSz, stats the backing file, and asserts the
// reported size is a positive multiple of pageSz.
func GetInfo(topo *topology.Topology, name string, pageSz pagesize.PageSize) (Info, error) {
	const op = "info"

	if region.ValidateName(name) == 0 {
		return Info{}, shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad name %q", name))
	}

	if pageSz == pagesize.Unknown {
		for _, candidate := range []pagesize.PageSize{pagesize.Gigantic, pagesize.Huge, pagesize.Normal} {
			info, err := statInfo(topo, name, candidate)
			if err == nil {
				return info, nil
			}
			if !shmemerr.Is(err, shmemerr.NotFound) {
				return Info{}, err
			}
		}
		return Info{}, shmemerr.New(op, shmemerr.NotFound, fmt.Errorf("no variant of %q found", name))
	}

	if !pagesize.IsValid(pageSz) {
		return Info{}, shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}

	return statInfo(topo, name, pageSz)
}

// statInfo stats the backing file for one specific page size. name and
// pageSz are already validated by GetInfo.
func statInfo(topo *topology.Topology, name string, pageSz pagesize.PageSize) (Info, error) {
	const op = "info"

	path, err := region.ResolvePath(topo.Base(), pageSz, name)
	if err != nil {
		return Info{}, err
	}

	fd, err := pagemap.OpenReadOnly(path)
	if err != nil {
		if pagemap.IsNotExist(err) {
			return Info{}, shmemerr.New(op, shmemerr.NotFound, err)
		}
		return Info{}, shmemerr.New(op, shmemerr.IO, err)
	}
	defer func() {
		if err := pagemap.Close(fd); err != nil {
			// best-effort; the caller already has what it needs
			_ = err
		}
	}()

	sz, err := pagemap.Size(fd)
	if err != nil {
		return Info{}, shmemerr.New(op, shmemerr.IO, fmt.Errorf("fstat(%q) failed: %w", path, err))
	}

	if sz <= 0 || uint64(sz)%uint64(pageSz) != 0 {
		return Info{}, shmemerr.New(op, shmemerr.CorruptMount, fmt.Errorf(
			"%q size (%d) is not a positive multiple of page size (%d); the mount at %q has probably been corrupted",
			path, sz, pageSz, topo.Base()))
	}

	return Info{PageSz: pageSz, PageCnt: uint64(sz) / uint64(pageSz)}, nil
}
