package interceptors

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/activity"
)

// Correlation headers set on outgoing engine requests
const (
	BriefIDHeader = "X-Brief-ID"
	RunIDHeader   = "X-Run-ID"
)

type briefIDKey struct{}

// WithBriefID tags ctx so engine requests made under it carry id
func WithBriefID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, briefIDKey{}, id)
}

// BriefID returns the id set by WithBriefID
func BriefID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(briefIDKey{}).(string)
	return id, ok && id != ""
}

// BriefRoundTripper adds brief correlation headers to outgoing engine requests.
// Inside a Temporal activity the workflow and run IDs are used; otherwise the
// ID attached with WithBriefID.
type BriefRoundTripper struct {
	base http.RoundTripper
}

// NewBriefRoundTripper wraps base, or http.DefaultTransport when nil
func NewBriefRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BriefRoundTripper{base: base}
}

func (b *BriefRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	briefID, runID := correlation(req.Context())
	if briefID == "" {
		return b.base.RoundTrip(req)
	}
	// RoundTrip must not modify the caller's request
	req = req.Clone(req.Context())
	req.Header.Set(BriefIDHeader, briefID)
	if runID != "" {
		req.Header.Set(RunIDHeader, runID)
	}
	return b.base.RoundTrip(req)
}

func correlation(ctx context.Context) (briefID, runID string) {
	if id, ok := workflowIDs(ctx); ok {
		return id.ID, id.RunID
	}
	briefID, _ = BriefID(ctx)
	return briefID, ""
}

type execution struct{ ID, RunID string }

// workflowIDs reads the activity info; GetInfo panics outside an activity
func workflowIDs(ctx context.Context) (exec execution, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			exec, ok = execution{}, false
		}
	}()
	info := activity.GetInfo(ctx)
	if info.WorkflowExecution.ID == "" {
		return execution{}, false
	}
	return execution{ID: info.WorkflowExecution.ID, RunID: info.WorkflowExecution.RunID}, true
}
