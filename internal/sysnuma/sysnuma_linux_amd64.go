//go:build linux && amd64

package sysnuma

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw syscall numbers for the x86-64 NUMA memory-policy calls. These have no
// golang.org/x/sys/unix wrapper, so they are invoked directly via
// unix.Syscall6, the same pattern the corpus uses for other unwrapped Linux
// syscalls and ioctls (e.g. userfaultfd's UFFDIO_COPY).
const (
	sysMbind         = 237
	sysSetMempolicy  = 238
	sysGetMempolicy  = 239
	sysMovePages     = 279
	moveStatusLength = 512
)

// GetMempolicy snapshots the calling thread's current NUMA memory policy.
func GetMempolicy() (Policy, error) {
	var pol Policy
	var mode int
	_, _, errno := unix.Syscall6(sysGetMempolicy,
		uintptr(unsafe.Pointer(&mode)),
		uintptr(unsafe.Pointer(&pol.NodeMask)),
		uintptr(MaxNode),
		0, 0, 0)
	if errno != 0 {
		return Policy{}, errno
	}
	pol.Mode = mode
	return pol, nil
}

// SetMempolicy installs pol as the calling thread's NUMA memory policy.
func SetMempolicy(pol Policy) error {
	_, _, errno := unix.Syscall6(sysSetMempolicy,
		uintptr(pol.Mode),
		uintptr(unsafe.Pointer(&pol.NodeMask)),
		uintptr(MaxNode),
		0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// BindNode installs MPOL_BIND|MPOL_F_STATIC_NODES with a one-hot nodemask
// selecting node as the calling thread's NUMA memory policy.
func BindNode(node uint) error {
	mask := NodeMaskFor(node)
	return SetMempolicy(Policy{Mode: PolicyBind | PolicyFlagStaticNodes, NodeMask: mask})
}

// Mbind rebinds the memory region [addr, addr+length) to the given NUMA
// policy, so the binding persists independent of thread-local mempolicy
// (e.g. after the allocating thread unmaps the region).
func Mbind(addr uintptr, length uintptr, node uint, flags int) error {
	mask := NodeMaskFor(node)
	_, _, errno := unix.Syscall6(sysMbind,
		addr, length, uintptr(PolicyBind),
		uintptr(unsafe.Pointer(&mask)), uintptr(MaxNode), uintptr(flags))
	if errno != 0 {
		return errno
	}
	return nil
}

// MovePages queries (does not move, since nodes is nil) the NUMA node each
// address in pages currently resides on, writing the result into status.
// len(pages) must equal len(status) and must be <= moveStatusLength.
func MovePages(pages []uintptr, status []int32) error {
	if len(pages) != len(status) {
		panic("sysnuma: MovePages: len(pages) != len(status)")
	}
	if len(pages) == 0 {
		return nil
	}

	_, _, errno := unix.Syscall6(sysMovePages,
		0, // pid 0: the calling process
		uintptr(len(pages)),
		uintptr(unsafe.Pointer(&pages[0])),
		0, // nodes == NULL: query current location, don't move
		uintptr(unsafe.Pointer(&status[0])),
		0)
	if errno != 0 {
		return errno
	}
	return nil
}

// BatchSize is the maximum number of pages MovePages accepts per call. It
// caps transient memory use and syscall latency; it is an internal
// constant, not part of the contract.
const BatchSize = moveStatusLength
