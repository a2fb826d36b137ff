// Package scope holds the task-scoped dispatch state: the request currently
// being dispatched and the filter after which the next dispatch resumes.
//
// The state rides in a context.Context. Nested dispatch calls made with a
// context derived from the outer call share the outer call's Scope, so the
// dispatcher can tell the outermost call from nested ones. Collaborators that
// need the request in flight but are not handed it directly can look it up
// with Holder.CurrentRequest.
package scope

import (
	"context"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// Scope is the dispatch state of one task. It is safe for concurrent use so
// that a handler may pass its context to helper goroutines.
type Scope struct {
	mu      sync.Mutex
	request common.Request
	origin  common.FilterID
	routed  bool
}

// SetCurrentRequest binds req unconditionally.
func (s *Scope) SetCurrentRequest(req common.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = req
}

// BindRequest binds req if no request is bound and reports whether it did.
func (s *Scope) BindRequest(req common.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request != nil {
		return false
	}
	s.request = req
	s.routed = false
	return true
}

// ClearCurrentRequest unbinds the current request.
func (s *Scope) ClearCurrentRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = nil
}

// CurrentRequest returns the bound request.
func (s *Scope) CurrentRequest() (common.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request, s.request != nil
}

// SetResumeOrigin marks id as the filter after which the next dispatch
// resumes scanning. The zero ID clears the marker.
func (s *Scope) SetResumeOrigin(id common.FilterID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = id
}

// ClearResumeOrigin removes the resume marker.
func (s *Scope) ClearResumeOrigin() {
	s.SetResumeOrigin(0)
}

// ResumeOrigin returns the resume marker.
func (s *Scope) ResumeOrigin() (common.FilterID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin, s.origin != 0
}

// MarkRouted records that a terminal handler ran for the bound request.
func (s *Scope) MarkRouted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routed = true
}

// Routed reports whether a terminal handler ran since the request was bound.
func (s *Scope) Routed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routed
}

// holderKey is the context key of one Holder.
type holderKey struct {
	_ byte
}

// Holder owns one family of scopes. Every dispatcher has its own Holder so
// that dispatchers nested inside each other never share slots.
type Holder struct {
	key *holderKey
}

// NewHolder creates a Holder.
func NewHolder() *Holder {
	return &Holder{key: &holderKey{}}
}

// Enter returns the Scope carried by ctx, attaching a new one if there is none.
func (h *Holder) Enter(ctx context.Context) (context.Context, *Scope) {
	if s, ok := h.Scope(ctx); ok {
		return ctx, s
	}
	s := &Scope{}
	return context.WithValue(ctx, h.key, s), s
}

// Scope returns the Scope carried by ctx.
func (h *Holder) Scope(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(h.key).(*Scope)
	return s, ok
}

// CurrentRequest returns the request being dispatched in ctx's task.
func (h *Holder) CurrentRequest(ctx context.Context) (common.Request, bool) {
	s, ok := h.Scope(ctx)
	if !ok {
		return nil, false
	}
	return s.CurrentRequest()
}
