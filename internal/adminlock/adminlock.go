// Package adminlock provides the process-wide administration lock guarding
// every sequence of calls that mutates the current thread's NUMA memory
// policy.
//
// A non-recursive lock is safe here only if no administrative call reenters
// another one while holding it. Create, Unlink, Info, Acquire, and Release
// are each leaf administrative operations — none calls another locking
// operation internally. Only Create and Acquire take this lock; Unlink,
// Info, and Release do not touch the memory policy and do not take it. The
// residency validator Create and Acquire call is lock-free (it only reads
// topology state and queries the kernel). A plain sync.Mutex is therefore
// sufficient; see DESIGN.md.
package adminlock

import "sync"

// Lock is the process-wide administration lock.
var Lock sync.Mutex
