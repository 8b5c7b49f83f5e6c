package models

// ChatRequest is the body of POST /chat. The length bounds are enforced by
// gin's validator and count runes, not bytes.
type ChatRequest struct {
	Question string `json:"question" binding:"required,min=1,max=1000"`
}
