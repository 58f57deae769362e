package github

// Status classifies the outcome of one category fetch.
type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Result is the outcome of fetching one page of items.
// Items is newest-first; Err is set only when the fetch failed.
type Result[T any] struct {
	Items []T
	Err   error
}

// Status reports whether the fetch failed, came back empty, or returned items.
func (r Result[T]) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case len(r.Items) == 0:
		return StatusEmpty
	default:
		return StatusOK
	}
}

func ok[T any](items []T) Result[T] {
	return Result[T]{Items: items}
}

func failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}
