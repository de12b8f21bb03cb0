package assembly

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecodeFailed = errors.New("decode-failed")
	ErrEncodeFailed = errors.New("encode-failed")
)

// Output is one finished document.
type Output struct {
	Name  string
	Data  []byte
	Pages int
}

// Failure names the item or output that was dropped and why.
type Failure struct {
	ItemKey string
	Err     error
}

// Error renders "<kind>: <item key>: <cause>", e.g. "decode-failed: 1:scan.pdf: EOF".
func (f Failure) Error() string { return f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// Result is the outcome of one merge or split invocation.
type Result struct {
	Outputs  []Output
	Failures []Failure
}

// Summary renders the failure log as one line per entry.
func (r Result) Summary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		lines = append(lines, f.Error())
	}
	return strings.Join(lines, "\n")
}

func (r *Result) fail(key string, kind error, cause error) {
	err := fmt.Errorf("%w: %s", kind, key)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %v", kind, key, cause)
	}
	r.Failures = append(r.Failures, Failure{ItemKey: key, Err: err})
}
