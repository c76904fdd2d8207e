package chat

// History is a chronological conversation owned by one user.
// It holds at most one system message, and only at index 0.
type History []Message

// EnsureSystem inserts the system prompt at the head unless one is already there.
// It reports whether an insert happened.
func (h *History) EnsureSystem(prompt string) bool {
	if len(*h) > 0 && (*h)[0].Role == RoleSystem {
		return false
	}
	*h = append(History{SystemMessage(prompt)}, *h...)
	return true
}

func (h *History) Append(msgs ...Message) {
	*h = append(*h, msgs...)
}

func (h *History) Clear() {
	*h = History{}
}

func (h History) Len() int { return len(h) }

func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

// User is the per-user state mutated by a turn.
type User struct {
	ID      string
	History History
}

func NewUser(id string) *User {
	return &User{ID: id, History: History{}}
}
