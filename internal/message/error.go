package message

import "errors"

// Error is the structured failure every operation returns. It carries a stable
// numeric code plus the context needed to render the client-facing message.
// Internal causes ride along for logging but never reach the wire.
type Error struct {
	Code    Code
	Context map[string]string
	cause   error
}

// NewError builds an Error from a code and alternating key/value context pairs.
func NewError(code Code, kv ...string) *Error {
	return &Error{Code: code, Context: pairs(kv)}
}

// WrapError attaches an internal cause to a coded error.
func WrapError(code Code, cause error, kv ...string) *Error {
	return &Error{Code: code, Context: pairs(kv), cause: cause}
}

func pairs(kv []string) map[string]string {
	if len(kv) == 0 {
		return nil
	}
	ctx := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ctx[kv[i]] = kv[i+1]
	}
	return ctx
}

func (e *Error) Error() string {
	if msg := Render(e.Code, e.Context); msg != "" {
		return msg
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "unknown error"
}

// Message returns the rendered client-facing text.
func (e *Error) Message() string {
	return e.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError coerces any error into a *Error, wrapping unexpected failures under
// the generic unknown-error code so internal details never leak to clients.
func AsError(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return WrapError(ErrUnknown, err)
}
