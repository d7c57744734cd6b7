package bboltx

// PanicSentinel wraps errors raised by Must() so that Recover() can tell them
// apart from unrelated panics.
type PanicSentinel struct {
	// Cause is the error that caused the panic.
	Cause error
}

// Must panics with a PanicSentinel if err is non-nil.
func Must(err error) {
	if err != nil {
		panic(PanicSentinel{err})
	}
}

// Recover recovers from a panic raised by Must() and assigns its cause to
// *err.
//
// It must be called directly by a deferred statement. Any other panic value
// is re-raised.
func Recover(err *error) {
	if err == nil {
		panic("err must be a non-nil pointer")
	}

	switch v := recover().(type) {
	case nil:
	case PanicSentinel:
		*err = v.Cause
	default:
		panic(v)
	}
}
