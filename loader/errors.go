package loader

import (
	"errors"
	"fmt"
)

// Recoverable load failures. These describe inputs or collaborators the
// operator can correct; the load aborts but the condition is reported as
// a plain error.
var (
	// ErrInvalidCommandLine means the command line contains an embedded
	// null byte and cannot be null terminated.
	ErrInvalidCommandLine = errors.New("command line is not a valid C string")

	// ErrParameterTooLarge means a parameter value does not fit the
	// declared bound of its parameter area.
	ErrParameterTooLarge = errors.New("parameter too large for parameter area")

	// ErrDecodeHostData means the host measurement salt is not a valid
	// 32-byte hex string.
	ErrDecodeHostData = errors.New("error decoding host data")

	// ErrStartupMemory means a RequiredMemory range is not backed by
	// guest RAM.
	ErrStartupMemory = errors.New("required startup memory is not available")

	// ErrImportIsolatedPages wraps a failed batched page import.
	ErrImportIsolatedPages = errors.New("error importing isolated pages")

	// ErrCompleteIsolatedImport wraps a failed launch finalize.
	ErrCompleteIsolatedImport = errors.New("error completing isolated import")

	// ErrSetSevControlRegister wraps a failed isolation-control register
	// write.
	ErrSetSevControlRegister = errors.New("error setting sev control register")
)

// InvariantError reports a structural violation of the boot image
// itself: duplicate or missing parameter areas, unsupported directives
// or page types, a compatibility mask that does not match the platform,
// or a malformed payload. Such an image is corrupt or adversarial and
// the load cannot continue, so this class is kept distinct from the
// recoverable errors above.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "invalid igvm file: " + e.Reason
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err is a structural boot image
// violation rather than a recoverable load failure.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError

	return errors.As(err, &ie)
}
