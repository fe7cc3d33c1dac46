package resource

import "errors"

// Outcome is the result of one item in a bulk operation.
type Outcome struct {
	ID  string
	Err error
}

// BatchResult keeps per-item outcomes of a bulk operation in request order.
type BatchResult struct {
	Outcomes []Outcome
}

// OK reports whether every item succeeded.
func (b BatchResult) OK() bool {
	return len(b.Failed()) == 0
}

func (b BatchResult) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Unauthorized reports whether any item failed for lack of a valid session.
func (b BatchResult) Unauthorized() bool {
	for _, o := range b.Outcomes {
		if errors.Is(o.Err, ErrUnauthorized) {
			return true
		}
	}
	return false
}
