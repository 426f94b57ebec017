package apiclient

// Envelope is the shape of every API response body.
type Envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Body    T      `json:"body,omitempty"`
}

// Empty is the body type for calls whose envelope carries no payload.
type Empty struct{}
