package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMatchesClassAndSentinel(t *testing.T) {
	errThing := Classify(ErrBusinessRule, "thing rejected")
	wrapped := fmt.Errorf("line 2: %w", errThing)

	assert.ErrorIs(t, wrapped, errThing)
	assert.ErrorIs(t, wrapped, ErrBusinessRule)
	assert.NotErrorIs(t, wrapped, ErrValidation)
	assert.Equal(t, "line 2: thing rejected", wrapped.Error())
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ErrNotFound, ClassOf(Classify(ErrNotFound, "missing")))
	assert.Equal(t, ErrConflict, ClassOf(ErrIdempotencyConflict))
	assert.Nil(t, ClassOf(errors.New("boom")))
}
