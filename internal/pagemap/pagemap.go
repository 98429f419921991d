// Package pagemap provides the low-level file and mapping primitives
// (open/ftruncate/mmap/munmap/mlock/fstat/unlink) the named-region lifecycle
// and anonymous allocator build on.
package pagemap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CreateExclusive opens path for exclusive creation with the given POSIX
// mode, failing if the file already exists.
func CreateExclusive(path string, mode uint32) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, mode)
}

// OpenReadOnly opens path for reading, failing if it does not exist.
func OpenReadOnly(path string) (int, error) {
	return unix.Open(path, unix.O_RDONLY, 0)
}

// Truncate sizes the open file descriptor fd to exactly sz bytes.
func Truncate(fd int, sz int64) error {
	return unix.Ftruncate(fd, sz)
}

// MapShared maps fd read-write, shared, for sz bytes starting at offset 0.
func MapShared(fd int, sz int) ([]byte, error) {
	return unix.Mmap(fd, 0, sz, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// MapAnonymous maps sz anonymous, private bytes with the given additional
// mmap flags (e.g. MAP_HUGETLB|MAP_HUGE_2MB), not backed by any file.
func MapAnonymous(sz int, extraFlags int) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | extraFlags
	return unix.Mmap(-1, 0, sz, unix.PROT_READ|unix.PROT_WRITE, flags)
}

// Unmap releases a mapping obtained from MapShared or MapAnonymous.
func Unmap(data []byte) error {
	return unix.Munmap(data)
}

// Lock pre-faults and pins data in physical memory, forcing the kernel to
// back it now and fail synchronously with ENOMEM if it cannot, rather than
// deferring the failure to an asynchronous SIGBUS on first touch.
func Lock(data []byte) error {
	return unix.Mlock(data)
}

// Close closes an open file descriptor.
func Close(fd int) error {
	return unix.Close(fd)
}

// Unlink removes the named file.
func Unlink(path string) error {
	return unix.Unlink(path)
}

// Size returns the size in bytes of the open file descriptor fd.
func Size(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// IsExist reports whether err indicates the target already existed.
func IsExist(err error) bool { return os.IsExist(err) || err == unix.EEXIST }

// IsNotExist reports whether err indicates the target did not exist.
func IsNotExist(err error) bool { return os.IsNotExist(err) || err == unix.ENOENT }

// Addr returns the base address of a mapping's backing slice for use with
// the raw sysnuma syscalls, which operate on uintptr addresses rather than
// Go slices.
func Addr(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}

// IsPageAligned reports whether addr is a multiple of pageSz.
func IsPageAligned(addr uintptr, pageSz uint64) bool {
	return addr%uintptr(pageSz) == 0
}
