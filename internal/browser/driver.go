package browser

import (
	"context"
	"net/http"
)

// Driver automates one browser. Implementations are not safe for
// concurrent use; a Session serializes access.
type Driver interface {
	Start(ctx context.Context) error
	Stop() error
	IsStarted() bool
	Visit(ctx context.Context, target string) error
	Submit(ctx context.Context, sub *Submission) error
	StatusCode() int
	ResponseHeaders() http.Header
	Content() string
	CurrentURL() string
	SetCookie(name, value string) error
	Cookie(name string) (string, bool, error)
	SetRequestHeader(name, value string)
}
