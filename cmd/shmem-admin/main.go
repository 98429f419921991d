// Package main is the entry point for the shared-memory administration
// service and its command-line tooling.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/penguintechinc/shmem-admin/internal/adminserver"
	"github.com/penguintechinc/shmem-admin/internal/config"
	"github.com/penguintechinc/shmem-admin/internal/metrics"
	"github.com/penguintechinc/shmem-admin/internal/topology"
	shmemadmin "github.com/penguintechinc/shmem-admin"
)

// stdLogger adapts the standard library's log.Logger to shmemlog.Logger.
type stdLogger struct{ l *log.Logger }

func (s stdLogger) Infof(format string, args ...any)  { s.l.Printf("INFO "+format, args...) }
func (s stdLogger) Warnf(format string, args ...any)  { s.l.Printf("WARN "+format, args...) }
func (s stdLogger) Errorf(format string, args ...any) { s.l.Printf("ERROR "+format, args...) }

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// --shmem-path is a global flag recognized ahead of the subcommand
	// name, e.g. "shmem-admin --shmem-path /mnt/.fd2 create ...". It takes
	// precedence over FD_SHMEM_PATH when both are set.
	globalFlags := flag.NewFlagSet("shmem-admin", flag.ExitOnError)
	shmemPath := globalFlags.String("shmem-path", "", "shared-memory base path (overrides FD_SHMEM_PATH)")
	globalFlags.Usage = usage
	globalFlags.Parse(os.Args[1:])

	args := globalFlags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if *shmemPath != "" {
		cfg.ShmemBase = *shmemPath
	}
	topology.SetSysfsRoot(cfg.NUMASysfsRoot)

	admin := shmemadmin.New(stdLogger{logger})
	if err := admin.Boot(cfg.ShmemBase); err != nil {
		log.Fatalf("topology boot failed: %v", err)
	}
	defer admin.Halt()

	// Metrics are collected in-process regardless of MetricsEnabled;
	// MetricsEnabled only gates whether "serve" exposes them over
	// /metrics. A create/unlink/info/acquire-release invocation still
	// records its own outcome and latency into m even though nothing
	// scrapes it this run.
	m := metrics.NewMetrics("shmem_admin")
	m.NUMANodeCount.Set(float64(admin.NumaCount()))
	m.CPUCount.Set(float64(admin.CpuCount()))
	admin.SetMetrics(m)

	switch args[0] {
	case "serve":
		runServe(admin, cfg, m)
	case "topology":
		runTopology(admin)
	case "create":
		runCreate(admin, args[1:])
	case "unlink":
		runUnlink(admin, args[1:])
	case "info":
		runInfo(admin, args[1:])
	case "acquire-release":
		runAcquireRelease(admin, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: shmem-admin [--shmem-path <dir>] <command> [flags]

global flags:
  --shmem-path <dir>  shared-memory base path; takes precedence over FD_SHMEM_PATH

commands:
  serve            run the diagnostics HTTP server (healthz/readyz/status/metrics/topology)
  topology         print discovered NUMA/CPU topology and exit
  create           create a named region
  unlink           remove a named region
  info             print a named region's page size and page count
  acquire-release  acquire an anonymous region, validate it, and release it`)
}

func runServe(admin *shmemadmin.Admin, cfg *config.Config, m *metrics.Metrics) {
	srv := adminserver.NewServer(cfg, admin.Topology(), m, "1.0.0")

	go func() {
		log.Printf("diagnostics server listening on %s:%d", cfg.DiagHost, cfg.DiagPort)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("diagnostics server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down diagnostics server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("diagnostics server forced to shutdown: %v", err)
	}
}

func runTopology(admin *shmemadmin.Admin) {
	fmt.Printf("numa_count=%d cpu_count=%d base=%s\n", admin.NumaCount(), admin.CpuCount(), admin.Base())
	for cpu := uint(0); cpu < uint(admin.CpuCount()); cpu++ {
		fmt.Printf("  cpu %d -> numa %d\n", cpu, admin.NumaOf(cpu))
	}
}

func runCreate(admin *shmemadmin.Admin, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "region name")
	pageSzStr := fs.String("page-sz", "normal", "page size: normal, huge, gigantic")
	pageCnt := fs.Uint64("page-cnt", 1, "number of pages")
	cpuIdx := fs.Uint("cpu-idx", 0, "owning CPU index")
	modeStr := fs.String("mode", "600", "octal file mode")
	fs.Parse(args)

	mode, err := strconv.ParseUint(*modeStr, 8, 32)
	if err != nil {
		log.Fatalf("bad --mode %q: %v", *modeStr, err)
	}
	pageSz := shmemadmin.PageSizeFromString(*pageSzStr)

	if err := admin.Create(*name, pageSz, *pageCnt, *cpuIdx, uint32(mode)); err != nil {
		log.Fatalf("create failed: %v", err)
	}
	fmt.Printf("created %s (%s x %d pages, cpu %d)\n", *name, pageSz, *pageCnt, *cpuIdx)
}

func runUnlink(admin *shmemadmin.Admin, args []string) {
	fs := flag.NewFlagSet("unlink", flag.ExitOnError)
	name := fs.String("name", "", "region name")
	pageSzStr := fs.String("page-sz", "normal", "page size: normal, huge, gigantic")
	fs.Parse(args)

	if err := admin.Unlink(*name, shmemadmin.PageSizeFromString(*pageSzStr)); err != nil {
		log.Fatalf("unlink failed: %v", err)
	}
	fmt.Printf("unlinked %s\n", *name)
}

func runInfo(admin *shmemadmin.Admin, args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	name := fs.String("name", "", "region name")
	pageSzStr := fs.String("page-sz", "", "page size: normal, huge, gigantic (empty probes all)")
	fs.Parse(args)

	info, err := admin.Info(*name, shmemadmin.PageSizeFromString(*pageSzStr))
	if err != nil {
		log.Fatalf("info failed: %v", err)
	}
	fmt.Printf("%s: page_sz=%s page_cnt=%d\n", *name, info.PageSz, info.PageCnt)
}

func runAcquireRelease(admin *shmemadmin.Admin, args []string) {
	fs := flag.NewFlagSet("acquire-release", flag.ExitOnError)
	pageSzStr := fs.String("page-sz", "normal", "page size: normal, huge, gigantic")
	pageCnt := fs.Uint64("page-cnt", 1, "number of pages")
	cpuIdx := fs.Uint("cpu-idx", 0, "owning CPU index")
	fs.Parse(args)

	region, err := admin.Acquire(shmemadmin.PageSizeFromString(*pageSzStr), *pageCnt, *cpuIdx)
	if err != nil {
		log.Fatalf("acquire failed: %v", err)
	}
	fmt.Printf("acquired %d bytes on cpu %d\n", len(region.Data), *cpuIdx)

	if err := admin.Release(region); err != nil {
		log.Fatalf("release failed: %v", err)
	}
	fmt.Println("released")
}
