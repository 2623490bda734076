// Package errs defines the error kinds surfaced by the update engine.
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine error.
type Kind int

const (
	// KindUnknown is an error that carries no classification.
	KindUnknown Kind = iota
	// InvalidParameter is a missing or malformed input such as an empty appVersion.
	InvalidParameter
	// AcquisitionFailed is a transport, status or decode failure during an update check.
	AcquisitionFailed
	// DownloadFailed is a failure fetching or unpacking a release payload.
	DownloadFailed
	// MergeFailed is a diff reconciliation failure or a missing entry point.
	MergeFailed
	// InstallFailed is a failure updating the package pointers.
	InstallFailed
	// RollbackFailed is a failure restoring the previous package.
	RollbackFailed
	// StoreCorrupted means the pointer file or package metadata is unreadable.
	StoreCorrupted
	// SettingsCorrupted means persisted settings could not be decoded.
	SettingsCorrupted
	// Canceled means the caller's context was canceled or timed out.
	Canceled
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	InvalidParameter:  "invalid parameter",
	AcquisitionFailed: "acquisition failed",
	DownloadFailed:    "download failed",
	MergeFailed:       "merge failed",
	InstallFailed:     "install failed",
	RollbackFailed:    "rollback failed",
	StoreCorrupted:    "store corrupted",
	SettingsCorrupted: "settings corrupted",
	Canceled:          "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned across the engine boundary.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "download" or "rollback".
	Op   string
	Hash string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Hash != "" {
		fmt.Fprintf(&b, " (package %s)", e.Hash)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// E builds an *Error. Context cancellation anywhere in err's chain turns
// the kind into Canceled. An err that already is an *Error with a kind keeps
// that kind and only gains the missing context.
func E(kind Kind, op string, err error) *Error {
	if err == nil {
		return &Error{Kind: kind, Op: op}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = Canceled
	}
	var inner *Error
	if errors.As(err, &inner) && inner.Kind != KindUnknown {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithHash sets the package hash and returns the error.
func (e *Error) WithHash(hash string) *Error {
	e.Hash = hash
	return e
}

// WithPath sets the path and returns the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// New builds an *Error from a message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
