package model

import "sort"

// Status is a resource status marker.
type Status string

const (
	// StatusOK is the implicit status asserted when no other status is set.
	StatusOK Status = "ok"
	// StatusPendingTransfer marks a resource with an open transfer request.
	StatusPendingTransfer Status = "pendingTransfer"
	// StatusPendingDelete marks a resource scheduled for deletion.
	StatusPendingDelete Status = "pendingDelete"
	// StatusClientDeleteProhibited blocks deletion at the sponsor's request.
	StatusClientDeleteProhibited Status = "clientDeleteProhibited"
	// StatusServerDeleteProhibited blocks deletion by registry policy.
	StatusServerDeleteProhibited Status = "serverDeleteProhibited"
	// StatusClientTransferProhibited blocks transfers at the sponsor's request.
	StatusClientTransferProhibited Status = "clientTransferProhibited"
	// StatusServerTransferProhibited blocks transfers by registry policy.
	StatusServerTransferProhibited Status = "serverTransferProhibited"
	// StatusClientUpdateProhibited blocks updates at the sponsor's request.
	StatusClientUpdateProhibited Status = "clientUpdateProhibited"
	// StatusServerUpdateProhibited blocks updates by registry policy.
	StatusServerUpdateProhibited Status = "serverUpdateProhibited"
)

// StatusSet is the set of status markers stored on a resource. The implicit
// OK status is never stored; use Effective to observe it.
type StatusSet map[Status]bool

// NewStatusSet builds a set from the given statuses.
func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		if s == StatusOK {
			continue
		}
		set[s] = true
	}
	return set
}

// Has reports whether the stored set contains the status.
func (s StatusSet) Has(status Status) bool {
	return s[status]
}

// With returns a copy of the set with the status added.
func (s StatusSet) With(status Status) StatusSet {
	out := s.Clone()
	if status != StatusOK {
		out[status] = true
	}
	return out
}

// Without returns a copy of the set with the status removed.
func (s StatusSet) Without(status Status) StatusSet {
	out := s.Clone()
	delete(out, status)
	return out
}

// Clone returns an independent copy of the set.
func (s StatusSet) Clone() StatusSet {
	out := make(StatusSet, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}

// Effective returns the externally visible statuses in sorted order. An
// empty stored set yields the implicit OK status; OK never coexists with
// any stored status.
func (s StatusSet) Effective() []Status {
	if len(s) == 0 {
		return []Status{StatusOK}
	}
	out := make([]Status, 0, len(s))
	for k, v := range s {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
