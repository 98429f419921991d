package anon

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

func TestAcquireRejectsBadPageSize(t *testing.T) {
	topo := bootTestTopology(t)
	_, err := Acquire(topo, shmemlog.Nop{}, pagesize.Unknown, 1, 0)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Acquire with bad page size: got %v, want InvalidArg", err)
	}
}

func TestAcquireRejectsZeroPageCount(t *testing.T) {
	topo := bootTestTopology(t)
	_, err := Acquire(topo, shmemlog.Nop{}, pagesize.Normal, 0, 0)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Acquire with zero page_cnt: got %v, want InvalidArg", err)
	}
}

func TestAcquireRejectsOutOfRangeCPU(t *testing.T) {
	topo := bootTestTopology(t)
	_, err := Acquire(topo, shmemlog.Nop{}, pagesize.Normal, 1, 99)
	if !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Acquire with out-of-range cpu_idx: got %v, want InvalidArg", err)
	}
}

func TestReleaseRejectsNilRegion(t *testing.T) {
	if err := Release(nil); !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Release(nil): got %v, want InvalidArg", err)
	}
	if err := Release(&Region{}); !shmemerr.Is(err, shmemerr.InvalidArg) {
		t.Fatalf("Release(&Region{}): got %v, want InvalidArg", err)
	}
}

// TestAcquireReleaseEndToEnd exercises the full acquire/release path against
// the real kernel, and asserts the round trip leaves this thread's memory
// policy bit-identical to its pre-call snapshot. It requires root for
// mlock/mbind and is skipped otherwise.
func TestAcquireReleaseEndToEnd(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root for mlock/mbind")
	}

	topo := bootTestTopology(t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, err := sysnuma.GetMempolicy()
	if err != nil {
		t.Skipf("get_mempolicy unavailable on this platform: %v", err)
	}

	region, err := Acquire(topo, shmemlog.Nop{}, pagesize.Normal, 4, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(region.Data) != 4*int(pagesize.Normal) {
		t.Errorf("Acquire region size = %d, want %d", len(region.Data), 4*int(pagesize.Normal))
	}

	if err := Release(region); err != nil {
		t.Fatalf("Release: %v", err)
	}

	after, err := sysnuma.GetMempolicy()
	if err != nil {
		t.Fatalf("get_mempolicy after release: %v", err)
	}
	if after != before {
		t.Fatalf("memory policy changed across acquire/release: before %+v, after %+v", before, after)
	}
}
