// Package sysnuma wraps the Linux NUMA memory-policy syscalls
// (set_mempolicy, get_mempolicy, mbind, move_pages) that golang.org/x/sys/unix
// does not expose directly. Two build variants exist: a Linux/amd64
// implementation issuing the raw syscalls via unix.Syscall6, and a stub for
// every other platform that reports unsupported.
package sysnuma

// Memory policy modes, from linux/mempolicy.h.
const (
	PolicyDefault = 0
	PolicyBind    = 2
)

// Memory policy flags, from linux/mempolicy.h.
const (
	PolicyFlagStaticNodes = 1 << 15
)

// mbind mode flags, from linux/mempolicy.h.
const (
	MbindMove   = 1 << 1
	MbindStrict = 1
)

// MaxNode bounds the nodemask width accepted by the policy calls, matching
// topology.NumaMax.
const MaxNode = 64

// NodeMask is a one-hot (or otherwise sparse) bitmask of NUMA node
// membership, sized for MaxNode nodes.
type NodeMask [(MaxNode + 63) / 64]uint64

// NodeMaskFor returns a NodeMask with exactly node's bit set.
func NodeMaskFor(node uint) NodeMask {
	var m NodeMask
	m[node>>6] |= 1 << (node & 63)
	return m
}

// Policy is a thread memory policy snapshot as returned by GetMempolicy,
// suitable for passing back to SetMempolicy to restore it.
type Policy struct {
	Mode     int
	NodeMask NodeMask
}
