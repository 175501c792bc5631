package constants

const (
	// ContextKeyUserID is the gin context key holding the authenticated user's id
	ContextKeyUserID = "user_id"

	// SessionKeyUserID is the session key holding the signed-in user's id
	SessionKeyUserID = "user_id"

	// SessionCookieName names the login session cookie
	SessionCookieName = "planner_session"

	// ContextKeyDateKey is the gin context key holding a validated :date param
	ContextKeyDateKey = "date_key"

	MinUsernameLength = 3
	MinPasswordLength = 8

	DefaultPageSize = 20
	MinPageSize     = 1
	MaxPageSize     = 100

	// MaxDraftTasks caps how many drafts one drafting request may return
	MaxDraftTasks = 10
)
