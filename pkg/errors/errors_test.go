package errors

import "testing"

func TestErrors_ErrorMethod(t *testing.T) {
	errs := []error{
		&IOError{Op: "flush", Err: fmtErr("disk full")},
		&MaxSizeExceededError{Requested: 128, Limit: 64},
		&EncodeError{What: "key", Err: fmtErr("bad utf8")},
		&DecodeError{What: "value", Err: fmtErr("short read")},
		&WriteConflictError{Keys: []string{"key0"}},
		&InternalError{Reason: "broken batch"},
	}

	for _, e := range errs {
		if e.Error() == "" {
			t.Errorf("Error() returned empty string for %T", e)
		}
	}
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func fmtErr(s string) error { return stringErr(s) }
