package rtxoff

// objectHeader is the common prefix every waitable object's control block
// embeds (spec.md §3, "Object with wait list"): whether the slot is
// currently allocated, its display name, and the head of its
// priority-ordered thread wait list. A separate arena index plus this
// validity flag stands in for the original's `id` tag check — a stale
// ObjectID whose slot has been freed and reused fails hdr.valid cheaply,
// the same role the id tag plays against use-after-free.
type objectHeader struct {
	valid bool
	name  string

	waitHead ThreadID
}

// FlagsOption bits control EventFlags/ThreadFlags Wait semantics (spec.md
// §4.7/§4.8).
type FlagsOption uint8

const (
	// FlagsWaitAny wakes when any requested bit is set (disjunction).
	// This is the default (zero value).
	FlagsWaitAny FlagsOption = 0
	// FlagsWaitAll requires every requested bit to be set (conjunction).
	FlagsWaitAll FlagsOption = 1 << 0
	// FlagsNoClear peeks at matching bits without clearing them.
	FlagsNoClear FlagsOption = 1 << 1
)

// flagsLegalMask is the widest bitset CMSIS-RTOS thread/event flags
// support: bit 31 is reserved (it would collide with error-code returns on
// the original C ABI), so only 31 distinct flags are usable (spec.md
// §4.8).
const flagsLegalMask uint32 = 0x7FFFFFFF

// checkFlags atomically tests current against mask per options and,
// unless FlagsNoClear is set and the check succeeds, clears the matching
// bits from *current. It returns the snapshot of bits that satisfied the
// wait (computed before clearing, so a disjunction-waiter sees exactly the
// bits that satisfied it — spec.md §4.7) and whether the wait is
// satisfied. Must be called with the kernel lock held.
func checkFlags(current *uint32, mask uint32, opts FlagsOption) (snapshot uint32, ok bool) {
	have := *current
	if opts&FlagsWaitAll != 0 {
		if have&mask != mask {
			return 0, false
		}
		snapshot = mask
	} else {
		matched := have & mask
		if matched == 0 {
			return 0, false
		}
		snapshot = matched
	}
	if opts&FlagsNoClear == 0 {
		*current &^= snapshot
	}
	return snapshot, true
}
