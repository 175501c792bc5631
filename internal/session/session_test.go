package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SetIdentityNotifiesOnChange(t *testing.T) {
	s := NewState()
	var seen []string
	unsubscribe := s.OnChange(func(id *Identity) {
		if id == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, id.ID)
	})

	s.SetIdentity(&Identity{ID: "u1", Username: "alice"})
	s.SetIdentity(&Identity{ID: "u1", Username: "alice"})
	s.Clear()

	assert.Equal(t, []string{"u1", ""}, seen)
	assert.False(t, s.IsAuthenticated())

	unsubscribe()
	unsubscribe()
	s.SetIdentity(&Identity{ID: "u2"})
	assert.Len(t, seen, 2)
}

func TestState_ErrorAndLoading(t *testing.T) {
	s := NewState()
	s.SetLoading(true)
	assert.True(t, s.Loading())

	s.SetError("invalid credentials")
	assert.Equal(t, "invalid credentials", s.Error())
	assert.False(t, s.Loading())

	s.SetIdentity(&Identity{ID: "u1", Username: "alice"})
	assert.Empty(t, s.Error())

	id := s.Identity()
	require.NotNil(t, id)
	id.Username = "mallory"
	assert.Equal(t, "alice", s.Identity().Username)
	assert.Equal(t, "u1", s.UserID())
}

func TestState_CallbacksRunInRegistrationOrder(t *testing.T) {
	s := NewState()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.OnChange(func(*Identity) { order = append(order, i) })
	}

	s.SetIdentity(&Identity{ID: "u1"})
	assert.Equal(t, []int{0, 1, 2}, order)
}
