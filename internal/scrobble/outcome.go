package scrobble

import (
	"slices"
	"strings"
)

// Result is one backend's answer to an action.
type Result struct {
	Backend string
	Err     error
}

// Outcome is the reduction of every backend's result for one action.
// It does not depend on the order results arrived in.
type Outcome struct {
	Results []Result
}

// Attempted reports whether any backend was called.
func (o Outcome) Attempted() bool {
	return len(o.Results) > 0
}

// Succeeded reports whether at least one backend accepted the action.
func (o Outcome) Succeeded() bool {
	for _, r := range o.Results {
		if r.Err == nil {
			return true
		}
	}
	return false
}

// Failed reports whether backends were called and all of them failed.
func (o Outcome) Failed() bool {
	return o.Attempted() && !o.Succeeded()
}

// Message joins the failures as "Service: error" with "; ".
// Entries are ordered by backend name.
func (o Outcome) Message() string {
	var parts []string
	for _, r := range o.Results {
		if r.Err != nil {
			parts = append(parts, r.Backend+": "+r.Err.Error())
		}
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}
