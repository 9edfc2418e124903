package multifactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlot_PopConsumesOnce(t *testing.T) {
	slot := NewSlot()

	state := &State{Email: "a@x.com", Password: "p", ChallengeToken: "tfa-1"}
	slot.Set(state)

	assert.Same(t, state, slot.Pop())
	assert.Nil(t, slot.Pop(), "second pop must see an empty slot")
}

func TestSlot_SetOverwrites(t *testing.T) {
	slot := NewSlot()

	slot.Set(&State{ChallengeToken: "old"})
	slot.Set(&State{ChallengeToken: "new"})

	popped := slot.Pop()
	assert.Equal(t, "new", popped.ChallengeToken)
}

func TestSlot_EmptyPop(t *testing.T) {
	assert.Nil(t, NewSlot().Pop())
}
