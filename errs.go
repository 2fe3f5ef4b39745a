package sgfa

import "errors"

// The error taxonomy is stable across store backends.
// Callers match these sentinels with errors.Is;
// call sites add context with wrapping.
var (
	// ErrLimits means an input failed field validation.
	ErrLimits = errors.New("input exceeds limits")

	// ErrNotExist means the requested object is logically missing.
	ErrNotExist = errors.New("not found")

	// ErrCorrupt means decoded bytes violated an invariant,
	// or the state index references a blob that must exist but doesn't.
	ErrCorrupt = errors.New("corrupt")

	// ErrConflict is the optimistic-concurrency revision mismatch.
	ErrConflict = errors.New("revision conflict")

	// ErrSanity means API misuse, such as operating on a closed jacket.
	ErrSanity = errors.New("sanity")

	// ErrPermission is reserved for the layers above;
	// this module never raises it.
	ErrPermission = errors.New("permission denied")
)
