package lifecycle

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
	"github.com/penguintechinc/shmem-admin/internal/shmemlog"
	"github.com/penguintechinc/shmem-admin/internal/sysnuma"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// bootTestTopology builds a single-node, four-CPU synthetic topology so
// argument-validation tests can exercise CpuCount()-dependent checks without
// touching the host's real NUMA tree.
func bootTestTopology(t *testing.T) *topology.Topology {
	t.Helper()
	root := t.TempDir()
	nodeDir := filepath.Join(root, "node0")
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nodeDir, "cpulist"), []byte("0-3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	topology.SetSysfsRoot(root)
	t.Cleanup(func() { topology.SetSysfsRoot("/sys/devices/system/node") })

	topo := &topology.Topology{}
	if err := topo.Boot(t.TempDir()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	t.Cleanup(topo.Halt)
	return topo
}

func TestCreateRejectsBadName(t *testing.T) {
	topo := bootTestTopology(t)
	err := Create(topo, shmemlog.Nop{}, "", pagesize.Normal, 1, 0, 0o600)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Create with empty name: got %v, want InvalidArg", err)
	}
}

func TestCreateRejectsBadPageSize(t *testing.T) {
	topo := bootTestTopology(t)
	err := Create(topo, shmemlog.Nop{}, "region0", pagesize.Unknown, 1, 0, 0o600)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Create with bad page size: got %v, want InvalidArg", err)
	}
}

func TestCreateRejectsZeroPageCount(t *testing.T) {
	topo := bootTestTopology(t)
	err := Create(topo, shmemlog.Nop{}, "region0", pagesize.Normal, 0, 0, 0o600)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Create with zero page_cnt: got %v, want InvalidArg", err)
	}
}

func TestCreateRejectsOutOfRangeCPU(t *testing.T) {
	topo := bootTestTopology(t)
	err := Create(topo, shmemlog.Nop{}, "region0", pagesize.Normal, 1, 99, 0o600)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Create with out-of-range cpu_idx: got %v, want InvalidArg", err)
	}
}

func TestCreateRejectsBadMode(t *testing.T) {
	topo := bootTestTopology(t)
	err := Create(topo, shmemlog.Nop{}, "region0", pagesize.Normal, 1, 0, 0o17777)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Create with out-of-range mode: got %v, want InvalidArg", err)
	}
}

func TestGetInfoRejectsBadName(t *testing.T) {
	topo := bootTestTopology(t)
	_, err := GetInfo(topo, "", pagesize.Normal)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("GetInfo with empty name: got %v, want InvalidArg", err)
	}
}

func TestGetInfoNotFound(t *testing.T) {
	topo := bootTestTopology(t)
	_, err := GetInfo(topo, "never-created", pagesize.Normal)
	if !shmemerr.Is(err, shmemerr.NotFound) {
		t.Fatalf("GetInfo on absent region: got %v, want NotFound", err)
	}
}

func TestUnlinkNotFound(t *testing.T) {
	topo := bootTestTopology(t)
	err := Unlink(topo, "never-created", pagesize.Normal)
	if !shmemerr.Is(err, shmemerr.NotFound) {
		t.Fatalf("Unlink on absent region: got %v, want NotFound", err)
	}
}

// TestCreatePolicyRestoredAfterFailure forces Create to fail after it has
// already bound this thread's memory policy — topo.Base() is an empty temp
// directory, so the "<base>/normal" directory does not exist and the
// exclusive create fails with ENOENT — and asserts the policy is
// bit-identical to its pre-call snapshot. The failure happens before
// mlock/mbind, so unlike the end-to-end tests this needs no root.
func TestCreatePolicyRestoredAfterFailure(t *testing.T) {
	topo := bootTestTopology(t)

	// Policy is per-OS-thread state; pin the goroutine so both snapshots
	// observe the thread Create binds and restores on.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, err := sysnuma.GetMempolicy()
	if err != nil {
		t.Skipf("get_mempolicy unavailable on this platform: %v", err)
	}

	err = Create(topo, shmemlog.Nop{}, "region0", pagesize.Normal, 1, 0, 0o600)
	if !shmemerr.Is(err, shmemerr.IO) {
		t.Fatalf("Create against missing page-size directory: got %v, want IO", err)
	}

	after, err := sysnuma.GetMempolicy()
	if err != nil {
		t.Fatalf("get_mempolicy after failed Create: %v", err)
	}
	if after != before {
		t.Fatalf("memory policy changed across failed Create: before %+v, after %+v", before, after)
	}
}

// TestCreateEndToEnd exercises the full create/info/unlink happy path
// against the real kernel: open+ftruncate+mmap+mlock+mbind+move_pages. It
// requires running as root with a writable normal-page directory and is
// skipped otherwise, since mlock/mbind both require elevated privileges or
// CAP_IPC_LOCK in most container environments.
func TestCreateEndToEnd(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root for mlock/mbind")
	}

	topo := bootTestTopology(t)
	base := topo.Base()
	if err := os.MkdirAll(filepath.Join(base, pagesize.Normal.String()), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	const name = "end-to-end"
	if err := Create(topo, shmemlog.Nop{}, name, pagesize.Normal, 4, 0, 0o600); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info, err := GetInfo(topo, name, pagesize.Normal)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.PageCnt != 4 {
		t.Errorf("GetInfo PageCnt = %d, want 4", info.PageCnt)
	}

	if err := Unlink(topo, name, pagesize.Normal); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root for mlock/mbind")
	}

	topo := bootTestTopology(t)
	base := topo.Base()
	if err := os.MkdirAll(filepath.Join(base, pagesize.Normal.String()), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	const name = "dup"
	if err := Create(topo, shmemlog.Nop{}, name, pagesize.Normal, 1, 0, 0o600); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	defer Unlink(topo, name, pagesize.Normal)

	err := Create(topo, shmemlog.Nop{}, name, pagesize.Normal, 1, 0, 0o600)
	if !shmemerr.Is(err, shmemerr.AlreadyExists) {
		t.Fatalf("duplicate Create: got %v, want AlreadyExists", err)
	}
}
