package llm

import "context"

// Client is the completion service. Implementations return errors as
// *Error so callers can classify them with [Classify].
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
