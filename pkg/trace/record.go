package trace

import (
	"errors"
	"fmt"
)

// ErrMalformedRawCall is returned for structurally incomplete call records
var ErrMalformedRawCall = errors.New("malformed raw call")

// RawCall is one observed call from a caller function to a callee function.
//
// The *FuncLine fields are the definition lines of the enclosing functions;
// CallLine is the line of the call expression inside the caller.
type RawCall struct {
	CallerFile     string `json:"callerFile"`
	CallerFuncLine int    `json:"callerFuncLine"`
	CallerFuncName string `json:"callerFuncName"`
	CalleeFile     string `json:"calleeFile"`
	CalleeFuncLine int    `json:"calleeFuncLine"`
	CalleeFuncName string `json:"calleeFuncName"`
	CallLine       int    `json:"callLine"`
}

// Validate checks that every field is present
func (r RawCall) Validate() error {
	switch {
	case r.CallerFile == "":
		return fmt.Errorf("%w: missing caller file", ErrMalformedRawCall)
	case r.CallerFuncName == "":
		return fmt.Errorf("%w: missing caller function name", ErrMalformedRawCall)
	case r.CallerFuncLine <= 0:
		return fmt.Errorf("%w: invalid caller function line %d", ErrMalformedRawCall, r.CallerFuncLine)
	case r.CalleeFile == "":
		return fmt.Errorf("%w: missing callee file", ErrMalformedRawCall)
	case r.CalleeFuncName == "":
		return fmt.Errorf("%w: missing callee function name", ErrMalformedRawCall)
	case r.CalleeFuncLine <= 0:
		return fmt.Errorf("%w: invalid callee function line %d", ErrMalformedRawCall, r.CalleeFuncLine)
	case r.CallLine <= 0:
		return fmt.Errorf("%w: invalid call line %d", ErrMalformedRawCall, r.CallLine)
	}
	return nil
}

func (r RawCall) String() string {
	return fmt.Sprintf("%s:%d(%s) -> %s:%d(%s) @%d",
		r.CallerFile, r.CallerFuncLine, r.CallerFuncName,
		r.CalleeFile, r.CalleeFuncLine, r.CalleeFuncName,
		r.CallLine)
}
