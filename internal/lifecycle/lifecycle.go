// Package lifecycle defines the legal status transitions of an incoming mail.
//
// The lifecycle is a strictly ordered pipeline; each non-terminal status has
// exactly one successor and Archivé is terminal.
package lifecycle

import (
	"mailflow/internal/model"
	"mailflow/pkg/apperror"
)

var pipeline = []model.MailStatus{
	model.StatusAcquis,
	model.StatusIndexe,
	model.StatusEnTraitement,
	model.StatusTraite,
	model.StatusValidation,
	model.StatusArchive,
}

// successors is built once from pipeline and never mutated.
var successors = func() map[model.MailStatus]model.MailStatus {
	next := make(map[model.MailStatus]model.MailStatus, len(pipeline)-1)
	for i := 0; i < len(pipeline)-1; i++ {
		next[pipeline[i]] = pipeline[i+1]
	}
	return next
}()

// Statuses returns the pipeline in order.
func Statuses() []model.MailStatus {
	out := make([]model.MailStatus, len(pipeline))
	copy(out, pipeline)
	return out
}

// Next returns the successor of current, false when current is terminal or unknown.
func Next(current model.MailStatus) (model.MailStatus, bool) {
	next, ok := successors[current]
	return next, ok
}

// IsKnown reports whether s is part of the pipeline.
func IsKnown(s model.MailStatus) bool {
	for _, p := range pipeline {
		if p == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s model.MailStatus) bool {
	return s == model.StatusArchive
}

// CanTransition is true iff target is the immediate successor of current.
func CanTransition(current, target model.MailStatus) bool {
	next, ok := successors[current]
	return ok && next == target
}

// Transition validates the current -> target edge.
func Transition(current, target model.MailStatus) error {
	if !CanTransition(current, target) {
		return &apperror.IllegalTransitionError{From: string(current), To: string(target)}
	}
	return nil
}
