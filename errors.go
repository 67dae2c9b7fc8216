package hashdb

import (
	"errors"
	"fmt"
	"os"

	"github.com/gostonefire/hashdb/internal/codec"
	"github.com/gostonefire/hashdb/internal/storage"
)

// Code - Classifies the errors returned by a DB
type Code int

const (
	// Success - No error
	Success Code = iota
	// InvalidState - Operation not valid in the current lifecycle phase
	InvalidState
	// InvalidArgument - Argument out of range or otherwise not accepted
	InvalidArgument
	// PermissionDenied - The file system refused access to the file
	PermissionDenied
	// NotFound - The file doesn't exist
	NotFound
	// CorruptFile - The file is not a valid hash db file
	CorruptFile
	// IOError - Any other failure reading or writing the file
	IOError
	// ReadOnly - Mutation attempted on a handle opened for reading
	ReadOnly
	// WouldBlock - A lock was contended and the handle was opened with NonBlockingLock
	WouldBlock
	// OutOfSpace - The file can't grow any further
	OutOfSpace
)

var codeNames = map[Code]string{
	Success:          "success",
	InvalidState:     "invalid state",
	InvalidArgument:  "invalid argument",
	PermissionDenied: "permission denied",
	NotFound:         "file not found",
	CorruptFile:      "corrupt file",
	IOError:          "i/o error",
	ReadOnly:         "read only",
	WouldBlock:       "would block",
	OutOfSpace:       "out of space",
}

// String - Returns a short description of the code
func (C Code) String() string {
	if name, ok := codeNames[C]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(C))
}

// Error - Error returned by every failing DB operation
//   - Code classifies the error
//   - Op is the name of the failing operation
//   - Err is the underlying cause, may be nil
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Error - Returns the error message
func (E *Error) Error() string {
	msg := "hashdb"
	if E.Op != "" {
		msg += " " + E.Op
	}
	msg += ": " + E.Code.String()
	if E.Err != nil {
		msg += ": " + E.Err.Error()
	}

	return msg
}

// Unwrap - Returns the underlying cause
func (E *Error) Unwrap() error {
	return E.Err
}

// Is - Matches any *Error with the same Code, which makes the Err sentinels usable with errors.Is
func (E *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == E.Code
}

// Sentinels to compare with using errors.Is
var (
	ErrInvalidState     = &Error{Code: InvalidState}
	ErrInvalidArgument  = &Error{Code: InvalidArgument}
	ErrPermissionDenied = &Error{Code: PermissionDenied}
	ErrNotFound         = &Error{Code: NotFound}
	ErrCorruptFile      = &Error{Code: CorruptFile}
	ErrIOError          = &Error{Code: IOError}
	ErrReadOnly         = &Error{Code: ReadOnly}
	ErrWouldBlock       = &Error{Code: WouldBlock}
	ErrOutOfSpace       = &Error{Code: OutOfSpace}
)

// newError - Returns an *Error for op with the given code and cause
func newError(op string, code Code, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// toError - Classifies an error from the layers below, nil stays nil
func toError(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	code := IOError
	switch {
	case errors.Is(err, os.ErrNotExist):
		code = NotFound
	case errors.Is(err, os.ErrPermission):
		code = PermissionDenied
	case errors.Is(err, storage.CorruptFile{}):
		code = CorruptFile
	case errors.Is(err, storage.FileLocked{}):
		code = WouldBlock
	case errors.Is(err, storage.OutOfSpace{}):
		code = OutOfSpace
	case errors.Is(err, storage.ReadOnly{}):
		code = ReadOnly
	case errors.Is(err, codec.MissingCodec{}):
		code = InvalidArgument
	}

	return newError(op, code, err)
}

// ErrCodeOf - Returns the Code of err, Success for nil and IOError for errors not coming from a DB
func ErrCodeOf(err error) Code {
	if err == nil {
		return Success
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return IOError
}
