package errcode

// Code is a stable, link-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	InvalidParams Code = "invalid_params"
	Unsupported   Code = "unsupported"

	// Feed rate cannot be expressed by any divisor/compare combination.
	RateTooFast Code = "rate_too_fast"
	RateTooSlow Code = "rate_too_slow"

	// Divisor table does not satisfy its ordering invariant.
	BadDivisorTable Code = "bad_divisor_table"

	UnknownCommand Code = "unknown_command"
	BadFrame       Code = "bad_frame"
	Timeout        Code = "timeout"

	Error Code = "error" // generic fallback
)

// Of extracts a Code from an error, defaulting to Error. Wrapped errors
// are unwrapped until a code is found.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		switch x := err.(type) {
		case Code:
			return x
		case coder:
			return x.Code()
		case unwrapper:
			err = x.Unwrap()
		default:
			return Error
		}
	}
	return Error
}

// Unreachable reports whether err means the requested feed rate is outside
// what the step timer can produce.
func Unreachable(err error) bool {
	c := Of(err)
	return c == RateTooFast || c == RateTooSlow
}
