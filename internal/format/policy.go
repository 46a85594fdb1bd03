package format

import (
	"fmt"
	"strconv"
	"strings"

	"ingest/internal/config"
)

// OnError is the load-wide reaction to a rejected record.
type OnError int

const (
	// Abort terminates the file on its first rejection and cancels the load.
	Abort OnError = iota
	// Continue keeps reading past rejections, up to an optional limit.
	Continue
)

func (m OnError) String() string {
	if m == Continue {
		return "CONTINUE"
	}
	return "ABORT"
}

// LoadPolicy is immutable per load. ErrorLimit applies to Continue only; 0
// means unlimited. SizeLimit caps the rows accepted across all files of the
// load; 0 means unlimited.
type LoadPolicy struct {
	OnError    OnError
	ErrorLimit int
	SizeLimit  int64

	Force            bool
	Purge            bool
	ReturnFailedOnly bool
}

// ResolvePolicy parses the copy options. abort_N is accepted as continue
// with an error limit of N.
func ResolvePolicy(c config.CopyOptions) (LoadPolicy, error) {
	p := LoadPolicy{
		Force:            c.Force,
		Purge:            c.Purge,
		ReturnFailedOnly: c.ReturnFailedOnly,
		SizeLimit:        c.SizeLimit,
	}
	if c.SizeLimit < 0 {
		return LoadPolicy{}, fmt.Errorf("size_limit must be >= 0, got %d", c.SizeLimit)
	}
	if c.ErrorLimit < 0 {
		return LoadPolicy{}, fmt.Errorf("error_limit must be >= 0, got %d", c.ErrorLimit)
	}
	mode := strings.ToLower(strings.TrimSpace(c.OnError))
	switch {
	case mode == "" || mode == "abort":
		if c.ErrorLimit > 0 {
			return LoadPolicy{}, fmt.Errorf("error_limit=%d requires on_error=continue", c.ErrorLimit)
		}
		p.OnError = Abort
	case mode == "continue":
		p.OnError = Continue
		p.ErrorLimit = c.ErrorLimit
	case strings.HasPrefix(mode, "abort_"):
		n, err := strconv.Atoi(strings.TrimPrefix(mode, "abort_"))
		if err != nil || n <= 0 {
			return LoadPolicy{}, fmt.Errorf("invalid on_error %q", c.OnError)
		}
		if c.ErrorLimit > 0 && c.ErrorLimit != n {
			return LoadPolicy{}, fmt.Errorf("on_error=%s conflicts with error_limit=%d", c.OnError, c.ErrorLimit)
		}
		p.OnError = Continue
		p.ErrorLimit = n
	default:
		return LoadPolicy{}, fmt.Errorf("invalid on_error %q", c.OnError)
	}
	return p, nil
}
