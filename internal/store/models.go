package store

import "time"

// Message roles. Tool records the outcome of a retrieval invocation made by
// the model during a turn; it is persisted but never part of the visible
// history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	ID        string    `json:"-"`
	ThreadID  string    `json:"-"`
	Seq       int64     `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}
