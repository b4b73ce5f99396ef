package observability

import (
	"context"
	"sync"
)

type requestInfoKey struct{}

// RequestInfo collects per-request facts discovered deep in the handler
// chain so outer middleware can report them after the handler returns.
// All methods are safe on a nil receiver.
type RequestInfo struct {
	mu         sync.Mutex
	route      string
	finalState string
	client     string
	subject    string
}

// ContextWithRequestInfo attaches a fresh RequestInfo to ctx.
func ContextWithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// RequestInfoFromContext returns the RequestInfo in ctx, or nil.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// SetRoute records the matched route name.
func (i *RequestInfo) SetRoute(route string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.route = route
	i.mu.Unlock()
}

// Route returns the matched route name or "".
func (i *RequestInfo) Route() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.route
}

// SetFinalState records the last pipeline state.
func (i *RequestInfo) SetFinalState(state string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.finalState = state
	i.mu.Unlock()
}

// SetClient records the rate limit key.
func (i *RequestInfo) SetClient(client string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.client = client
	i.mu.Unlock()
}

// SetSubject records the authenticated subject.
func (i *RequestInfo) SetSubject(subject string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.subject = subject
	i.mu.Unlock()
}

// Fields returns the recorded values as log fields, skipping empty ones.
func (i *RequestInfo) Fields() []Field {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	var fields []Field
	for _, kv := range [...][2]string{
		{"route", i.route},
		{"final_state", i.finalState},
		{"client", i.client},
		{"subject", i.subject},
	} {
		if kv[1] != "" {
			fields = append(fields, String(kv[0], kv[1]))
		}
	}
	return fields
}
