// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Code is the stable wire error code reported in a JSONRPCResult's error
// envelope. Values and names follow §6/§7 of the bridge specification.
type Code int

const (
	// CodeSuccess is never placed in an error envelope; it is the implicit
	// code of a response that carries a result instead.
	CodeSuccess Code = 0

	// CodeRemoteException is returned when the invoked method itself threw.
	CodeRemoteException Code = 490

	// CodeTransport marks a client-side connection/transport failure.
	// The bridge itself never produces this code; it is reserved for the
	// (out of scope) transport shell.
	CodeTransport Code = 550

	// CodeParse marks a malformed request: not well-formed, or missing
	// method/params.
	CodeParse Code = 590

	// CodeNoMethod marks a lookup, resolution, or arity failure.
	CodeNoMethod Code = 591

	// CodeUnmarshal marks a codec rejecting an inbound value.
	CodeUnmarshal Code = 592

	// CodeMarshal marks a return value with no applicable codec.
	CodeMarshal Code = 593
)

// kind distinguishes error *kinds* (§7) from the wire Code above; several
// kinds can share empty wire Codes in future extension, so they are kept
// as a stable token independent of the numeric Code for use in
// errors.Is-style comparisons.
type kind string

const (
	kindParse           kind = "PARSE_ERROR"
	kindNoMethod        kind = "NO_METHOD"
	kindUnmarshal       kind = "UNMARSHAL_ERROR"
	kindMarshal         kind = "MARSHAL_ERROR"
	kindRemoteException kind = "REMOTE_EXCEPTION"
	kindFixup           kind = "FIXUP_ERROR"
	kindNameConflict    kind = "NAME_CONFLICT"
	kindScopeError      kind = "SCOPE_ERROR"
	kindStaleHandle     kind = "UNMARSHAL_STALE_HANDLE"
)

// Error is a bridge error: it carries a wire Code, a human message, an
// optional stack trace (for REMOTE_EXCEPTION), and the call frame where it
// was raised. It implements error, fmt.Formatter and xerrors.Wrapper the
// same way the teacher's jsonrpc2.Error does.
type Error struct {
	Code  Code
	kind  kind
	Msg   string
	Trace string

	frame xerrors.Frame
	err   error
}

var _ error = (*Error)(nil)

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Format implements fmt.Formatter.
func (e *Error) Format(s fmt.State, r rune) {
	xerrors.FormatError(e, s, r)
}

// FormatError implements xerrors.Formatter.
func (e *Error) FormatError(p xerrors.Printer) (next error) {
	if e.Msg == "" {
		p.Printf("code=%v", e.Code)
	} else {
		p.Printf("%s (code=%v)", e.Msg, e.Code)
	}
	e.frame.Format(p)
	return e.err
}

// Unwrap implements xerrors.Wrapper.
func (e *Error) Unwrap() error { return e.err }

func newErr(c Code, k kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	e := &Error{
		Code:  c,
		kind:  k,
		Msg:   msg,
		frame: xerrors.Caller(1),
	}
	e.err = xerrors.New(msg)
	return e
}

func errParse(format string, args ...interface{}) *Error {
	return newErr(CodeParse, kindParse, format, args...)
}

func errNoMethod(format string, args ...interface{}) *Error {
	return newErr(CodeNoMethod, kindNoMethod, format, args...)
}

func errUnmarshal(format string, args ...interface{}) *Error {
	return newErr(CodeUnmarshal, kindUnmarshal, format, args...)
}

func errStaleHandle(format string, args ...interface{}) *Error {
	return newErr(CodeUnmarshal, kindStaleHandle, format, args...)
}

func errMarshal(format string, args ...interface{}) *Error {
	return newErr(CodeMarshal, kindMarshal, format, args...)
}

func errRemote(msg, trace string) *Error {
	e := newErr(CodeRemoteException, kindRemoteException, "%s", msg)
	e.Trace = trace
	return e
}

func errFixup(format string, args ...interface{}) *Error {
	// fixup errors are folded into UNMARSHAL_ERROR on the wire (§7: they
	// originate during unmarshal/fixup-apply), but keep their own kind so
	// tests can tell them apart from a codec rejection.
	e := newErr(CodeUnmarshal, kindFixup, format, args...)
	return e
}

// errNameConflict is returned by RegisterClass when a different class is
// already bound under the requested name, and by RegisterObject when the
// instance does not implement the given interface. It is a registration-time
// failure: it propagates to the admin API caller and is never put on the
// wire.
func errNameConflict(format string, args ...interface{}) *Error {
	return newErr(CodeSuccess, kindNameConflict, format, args...)
}

// errScopeError is returned by RegisterReference/RegisterCallableReference
// when called on the global bridge.
func errScopeError(format string, args ...interface{}) *Error {
	return newErr(CodeSuccess, kindScopeError, format, args...)
}

func isKind(err error, k kind) bool {
	var e *Error
	if xerrors.As(err, &e) {
		return e.kind == k
	}
	return false
}

// IsNameConflict reports whether err is a NAME_CONFLICT registration error.
func IsNameConflict(err error) bool { return isKind(err, kindNameConflict) }

// IsScopeError reports whether err is a SCOPE_ERROR registration error.
func IsScopeError(err error) bool { return isKind(err, kindScopeError) }

// IsStaleHandle reports whether err is an UNMARSHAL_STALE_HANDLE failure.
func IsStaleHandle(err error) bool { return isKind(err, kindStaleHandle) }
