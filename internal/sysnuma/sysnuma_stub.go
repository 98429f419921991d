//go:build !(linux && amd64)

package sysnuma

import "syscall"

// BatchSize mirrors the Linux/amd64 implementation's internal batching
// constant so callers can size buffers identically on every platform.
const BatchSize = 512

// On non-Linux or non-amd64 hosts the NUMA memory-policy syscalls don't
// exist, so every call here fails with ENOTSUP: the administrative
// operations that depend on it become unavailable, while the catalog and
// naming helpers elsewhere in the module keep working.

// GetMempolicy always fails on this platform.
func GetMempolicy() (Policy, error) { return Policy{}, syscall.ENOTSUP }

// SetMempolicy always fails on this platform.
func SetMempolicy(pol Policy) error { return syscall.ENOTSUP }

// BindNode always fails on this platform.
func BindNode(node uint) error { return syscall.ENOTSUP }

// Mbind always fails on this platform.
func Mbind(addr uintptr, length uintptr, node uint, flags int) error { return syscall.ENOTSUP }

// MovePages always fails on this platform.
func MovePages(pages []uintptr, status []int32) error { return syscall.ENOTSUP }
