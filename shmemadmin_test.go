package shmemadmin

import (
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/penguintechinc/shmem-admin/internal/metrics"
	"github.com/penguintechinc/shmem-admin/internal/shmemlog"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

func bootTestAdmin(t *testing.T) *Admin {
	t.Helper()
	root := t.TempDir()
	nodeDir := filepath.Join(root, "node0")
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nodeDir, "cpulist"), []byte("0-1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	topology.SetSysfsRoot(root)
	t.Cleanup(func() { topology.SetSysfsRoot("/sys/devices/system/node") })

	admin := New(shmemlog.Nop{})
	if err := admin.Boot(t.TempDir()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	t.Cleanup(admin.Halt)
	return admin
}

func TestBootAndTopologyAccessors(t *testing.T) {
	admin := bootTestAdmin(t)

	if !admin.Booted() {
		t.Errorf("Booted() = false, want true")
	}
	if admin.NumaCount() != 1 {
		t.Errorf("NumaCount() = %d, want 1", admin.NumaCount())
	}
	if admin.CpuCount() != 2 {
		t.Errorf("CpuCount() = %d, want 2", admin.CpuCount())
	}
	if admin.NumaOf(0) != 0 {
		t.Errorf("NumaOf(0) = %d, want 0", admin.NumaOf(0))
	}
	if admin.CpuOf(0) != 0 {
		t.Errorf("CpuOf(0) = %d, want 0", admin.CpuOf(0))
	}
}

func TestNameValid(t *testing.T) {
	if !NameValid("queue0") {
		t.Errorf("NameValid(queue0) = false, want true")
	}
	if NameValid("") {
		t.Errorf("NameValid(\"\") = true, want false")
	}
	if NameValid("_bad") {
		t.Errorf("NameValid(_bad) = true, want false")
	}
}

func TestPageSizeFromString(t *testing.T) {
	if PageSizeFromString("huge") != PageSizeHuge {
		t.Errorf("PageSizeFromString(huge) != PageSizeHuge")
	}
	if PageSizeFromString("bogus") != PageSizeUnknown {
		t.Errorf("PageSizeFromString(bogus) != PageSizeUnknown")
	}
}

func TestCreateSurfacesInvalidArg(t *testing.T) {
	admin := bootTestAdmin(t)

	err := admin.Create("", PageSizeNormal, 1, 0, 0o600)
	if !IsKind(err, ErrInvalidArg) {
		t.Fatalf("Create with empty name: got %v, want ErrInvalidArg", err)
	}
	if KindOf(err) != ErrInvalidArg {
		t.Fatalf("KindOf = %v, want ErrInvalidArg", KindOf(err))
	}
}

func TestValidateNumaSurfacesInvalidArg(t *testing.T) {
	admin := bootTestAdmin(t)

	err := admin.ValidateNuma(0, PageSizeNormal, 1, 0)
	if !IsKind(err, ErrInvalidArg) {
		t.Fatalf("ValidateNuma with nil addr: got %v, want ErrInvalidArg", err)
	}
}

func TestSetMetricsRecordsOperationOutcome(t *testing.T) {
	admin := bootTestAdmin(t)
	m := metrics.NewMetrics("test_shmem_admin_facade")
	admin.SetMetrics(m)

	if err := admin.Create("", PageSizeNormal, 1, 0, 0o600); !IsKind(err, ErrInvalidArg) {
		t.Fatalf("Create with empty name: got %v, want ErrInvalidArg", err)
	}

	var metric dto.Metric
	if err := m.CreateTotal.WithLabelValues("INVALID_ARG").Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Errorf("create/INVALID_ARG counter = %v, want 1", got)
	}
}
