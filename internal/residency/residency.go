// Package residency validates that every page of a mapping is physically
// resident on the NUMA node its caller expects.
package residency

import (
	"fmt"
	"math"

	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
	"github.com/penguintechinc/shmem-admin/internal/sysnuma"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// Validate checks, in order, that: addr is non-null, pageSz is valid, addr
// is page-aligned, pageCnt is in [1, MaxInt64/pageSz], and cpuIdx is in
// range. It then traverses the mapping in batches of up to
// sysnuma.BatchSize pages, querying the kernel for each page's resident
// NUMA node, and fails with shmemerr.WrongNode the first time a page's node
// differs from topo.NumaOf(cpuIdx).
func Validate(topo *topology.Topology, addr uintptr, pageSz pagesize.PageSize, pageCnt uint64, cpuIdx uint) error {
	const op = "validate_numa"

	if addr == 0 {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("null mem"))
	}
	if !pagesize.IsValid(pageSz) {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}
	if addr%uintptr(pageSz) != 0 {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("misaligned mem"))
	}
	maxCnt := uint64(math.MaxInt64) / uint64(pageSz)
	if pageCnt < 1 || pageCnt > maxCnt {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad page_cnt %d", pageCnt))
	}
	if cpuIdx >= uint(topo.CpuCount()) {
		return shmemerr.New(op, shmemerr.InvalidArg, fmt.Errorf("bad cpu_idx %d", cpuIdx))
	}

	wantNode := topo.NumaOf(cpuIdx)

	page := addr
	remaining := pageCnt
	batchPages := make([]uintptr, 0, sysnuma.BatchSize)
	batchStatus := make([]int32, sysnuma.BatchSize)

	for remaining > 0 {
		batchPages = batchPages[:0]
		n := uint64(sysnuma.BatchSize)
		if remaining < n {
			n = remaining
		}
		for i := uint64(0); i < n; i++ {
			batchPages = append(batchPages, page)
			page += uintptr(pageSz)
		}
		remaining -= n

		if err := sysnuma.MovePages(batchPages, batchStatus[:len(batchPages)]); err != nil {
			return shmemerr.New(op, shmemerr.IO, fmt.Errorf("move_pages query failed: %w", err))
		}

		for i, st := range batchStatus[:len(batchPages)] {
			if st < 0 {
				return shmemerr.New(op, shmemerr.IO, fmt.Errorf("page %d status failed: errno %d", i, -st))
			}
			if uint(st) != wantNode {
				return shmemerr.New(op, shmemerr.WrongNode, fmt.Errorf("page %d allocated to numa %d instead of numa %d", i, st, wantNode))
			}
		}
	}

	return nil
}
