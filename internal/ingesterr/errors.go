// Package ingesterr classifies ingestion-path failures into the taxonomy
// from the core error handling design: transient, permanent and malformed.
// Callers branch on classification rather than on error string matching.
package ingesterr

import "github.com/pkg/errors"

type class int

const (
	classTransient class = iota + 1
	classPermanent
	classMalformed
)

// classified wraps an underlying error with its taxonomy class.
type classified struct {
	class class
	err   error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Transient marks err as a retryable failure: network flap, rate limit,
// provider 5xx, timeout, or a transient store outage. Transient errors are
// never surfaced to callers of the ingestion path; they drive a skip-and-
// retry-next-tick or a DLQ enqueue.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: classTransient, err: err}
}

// Transientf is Transient with message formatting, mirroring errors.Wrapf.
func Transientf(err error, format string, args ...interface{}) error {
	return Transient(errors.Wrapf(err, format, args...))
}

// Permanent marks err as non-retryable: schema mismatch, constraint
// violation unrelated to the natural key, or a store that will never
// recover without operator intervention. Permanent errors are logged and
// counted, never DLQ'd — a DLQ would fill without hope of recovery.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: classPermanent, err: err}
}

func Permanentf(err error, format string, args ...interface{}) error {
	return Permanent(errors.Wrapf(err, format, args...))
}

// Malformed marks err as a single bad input (undecodable log, wrong topic
// count). The offending item is skipped; processing continues with the
// next one.
func Malformed(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: classMalformed, err: err}
}

func Malformedf(format string, args ...interface{}) error {
	return Malformed(errors.Errorf(format, args...))
}

// IsTransient reports whether err (or anything it wraps) was classified
// transient.
func IsTransient(err error) bool { return classOf(err) == classTransient }

// IsPermanent reports whether err was classified permanent.
func IsPermanent(err error) bool { return classOf(err) == classPermanent }

// IsMalformed reports whether err was classified malformed.
func IsMalformed(err error) bool { return classOf(err) == classMalformed }

func classOf(err error) class {
	var c *classified
	for err != nil {
		if asC, ok := err.(*classified); ok {
			c = asC
			break
		}
		err = errors.Unwrap(err)
	}
	if c == nil {
		return 0
	}
	return c.class
}
