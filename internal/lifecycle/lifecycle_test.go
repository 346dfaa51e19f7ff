package lifecycle

import (
	"errors"
	"testing"

	"mailflow/internal/model"
	"mailflow/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_OnlyImmediateSuccessor(t *testing.T) {
	statuses := Statuses()
	for i, from := range statuses {
		for j, to := range statuses {
			want := j == i+1
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_NoSelfLoop(t *testing.T) {
	assert.False(t, CanTransition(model.StatusValidation, model.StatusValidation))
	assert.False(t, CanTransition(model.StatusArchive, model.StatusArchive))
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("Rejeté", model.StatusIndexe))
	assert.False(t, CanTransition(model.StatusAcquis, "Rejeté"))
	assert.False(t, IsKnown("Rejeté"))
}

func TestTransition_ReturnsIllegalTransition(t *testing.T) {
	require.NoError(t, Transition(model.StatusTraite, model.StatusValidation))
	require.NoError(t, Transition(model.StatusValidation, model.StatusArchive))

	err := Transition(model.StatusTraite, model.StatusArchive)
	var illegal *apperror.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, "Traité", illegal.From)
	assert.Equal(t, "Archivé", illegal.To)

	err = Transition(model.StatusValidation, model.StatusTraite)
	assert.True(t, errors.As(err, &illegal), "backward edges are rejected")
}

func TestNext(t *testing.T) {
	next, ok := Next(model.StatusEnTraitement)
	require.True(t, ok)
	assert.Equal(t, model.StatusTraite, next)

	_, ok = Next(model.StatusArchive)
	assert.False(t, ok)
	assert.True(t, IsTerminal(model.StatusArchive))
	assert.False(t, IsTerminal(model.StatusValidation))
}

func TestStatuses_ReturnsCopy(t *testing.T) {
	s := Statuses()
	s[0] = "mutated"
	assert.Equal(t, model.StatusAcquis, Statuses()[0])
}
