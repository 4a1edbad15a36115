package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors identifying the broad taxonomy described in spec §7.
// Kinds, not concrete types: callers use errors.Is against these to decide
// how to react, while the concrete error still carries its own message.
var (
	// ErrInput marks a user-facing, non-retriable mistake: bad alias,
	// empty query, ambiguous channel, mutually exclusive order options.
	ErrInput = errors.New("input error")
	// ErrTransport marks a remote I/O failure other than not-found.
	ErrTransport = errors.New("transport error")
	// ErrStorage marks unrecoverable local I/O. Corruption is self-healed
	// by deletion rather than surfaced as ErrStorage.
	ErrStorage = errors.New("storage error")
	// ErrQueryParse names the query-parse failure kind. The TextIndex
	// capability reports search failures as an InputError directly and
	// does not return this sentinel.
	ErrQueryParse = errors.New("query parse error")
	// ErrCancelled marks cooperative cancellation. It is never surfaced
	// as a failure; callers observe it via progress state "canceled".
	ErrCancelled = errors.New("cancelled")

	// ErrNotFound distinguishes a missing remote resource from a
	// transport failure.
	ErrNotFound = errors.New("not found")
)

// InputError wraps ErrInput with a user-displayable message.
type InputError struct {
	Message string
}

func NewInputError(format string, args ...any) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string { return e.Message }
func (e *InputError) Unwrap() error { return ErrInput }

// TransportError wraps a remote I/O failure with the operation that
// caused it.
type TransportError struct {
	Op    string
	Cause error
}

func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}
func (e *TransportError) Unwrap() error { return ErrTransport }

// StorageError wraps an unrecoverable local I/O failure.
type StorageError struct {
	Op    string
	Cause error
}

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}
func (e *StorageError) Unwrap() error { return ErrStorage }

// NamedError tags an error with the name of the task that produced it, for
// use inside BundledError (the Cooperative Scheduler's §4.D accumulated
// error) and channelError-style aggregates.
type NamedError struct {
	Name  string
	Cause error
}

func (e NamedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Cause)
}
func (e NamedError) Unwrap() error { return e.Cause }

// BundledError collects the named errors of one or more parallel
// sub-tasks (§4.D "bundle errors", §7 "Aggregate errors preserve root
// causes").
type BundledError struct {
	Errors []NamedError
}

func (b *BundledError) Add(name string, err error) {
	b.Errors = append(b.Errors, NamedError{Name: name, Cause: err})
}

func (b *BundledError) Empty() bool { return len(b.Errors) == 0 }

// AsError returns nil if no errors were bundled, else the bundle itself.
func (b *BundledError) AsError() error {
	if b.Empty() {
		return nil
	}
	return b
}

func (b *BundledError) Error() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%d task(s) failed:\n", len(b.Errors))
	for _, e := range b.Errors {
		fmt.Fprintf(sb, "\t- %s\n", e.Error())
	}
	return sb.String()
}

func (b *BundledError) Unwrap() []error {
	errs := make([]error, len(b.Errors))
	for i, e := range b.Errors {
		errs[i] = e
	}
	return errs
}

// IsNotFound reports whether err (or anything it wraps) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
