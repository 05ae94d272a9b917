// Package model holds the judge domain entities shared across the core
// pipeline: submissions, problems, languages, test cases and their results.
package model

// Status is the lifecycle state of a Submission.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusCompiling Status = "Compiling"
	StatusRunning   Status = "Running"
	StatusFinished  Status = "Finished"
	StatusError     Status = "Error"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether a status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// transitions enumerates the legal Submission status graph from spec §4.5:
//
//	Queued    -> Compiling
//	Compiling -> Finished | Running
//	Running   -> Finished | Error
//
// Terminal states have no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusQueued:    {StatusCompiling: true},
	StatusCompiling: {StatusFinished: true, StatusRunning: true},
	StatusRunning:   {StatusFinished: true, StatusError: true},
	StatusFinished:  {},
	StatusError:     {},
}

// CanTransition reports whether moving from "from" to "to" is legal.
// The identity transition is always legal so idempotent redelivery (P5)
// never trips the guard.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}
