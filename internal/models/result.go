package models

// Result is the uniform envelope returned by every externally exposed room
// operation. Internal fault details never leak through it; callers that need
// them look at the server logs.
type Result struct {
	Ok      bool   `json:"ok"`
	Content any    `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK returns a successful result carrying content (which may be nil).
func OK(content any) Result {
	return Result{Ok: true, Content: content}
}

// Fail returns a failed result with a human-readable message.
func Fail(msg string) Result {
	return Result{Ok: false, Message: msg}
}
