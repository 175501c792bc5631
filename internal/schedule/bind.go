package schedule

import (
	"context"

	"github.com/yukikurage/day-planner-api/internal/session"
)

// BindSession keeps the store's user in step with state. Signing in switches the
// store to that user and loads their tasks; signing out makes the store local-only.
// The returned func detaches the store.
func (s *Store) BindSession(ctx context.Context, state *session.State) func() {
	if id := state.Identity(); id != nil {
		s.SetUser(id.ID)
		_ = s.LoadUserTasks(ctx)
	}
	return state.OnChange(func(id *session.Identity) {
		if id == nil {
			s.SetUser("")
			return
		}
		s.SetUser(id.ID)
		// Load failures are already logged and leave the buckets empty.
		_ = s.LoadUserTasks(ctx)
	})
}
