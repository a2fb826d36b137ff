package router

import (
	"context"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// Cursor is a position in a dispatcher's filter chain. The dispatcher hands
// every filter it invokes a cursor pointing at that filter, reachable from
// the filter's context.
type Cursor struct {
	dispatcher *Dispatcher
	filter     common.FilterID
}

type cursorKey struct{}

func withCursor(ctx context.Context, c Cursor) context.Context {
	return context.WithValue(ctx, cursorKey{}, c)
}

// CursorFromContext returns the cursor of the filter being invoked with ctx.
func CursorFromContext(ctx context.Context) (Cursor, bool) {
	c, ok := ctx.Value(cursorKey{}).(Cursor)
	if !ok || c.dispatcher == nil {
		return Cursor{}, false
	}
	return c, true
}

// Filter returns the ID of the filter the cursor points at.
func (c Cursor) Filter() common.FilterID {
	return c.filter
}

// Next marks the cursor's filter as the resume origin and dispatches again,
// so that the scan continues with the filters registered after it and then
// with the routes.
func (c Cursor) Next(ctx context.Context, req common.Request, resp common.Response) error {
	ctx = c.dispatcher.SetResumeOrigin(ctx, c.filter)
	return c.dispatcher.OnMessage(ctx, req, resp)
}

// Next continues the filter chain from the filter being invoked with ctx.
// It returns ErrNoCursor when ctx does not belong to a filter invocation.
func Next(ctx context.Context, req common.Request, resp common.Response) error {
	c, ok := CursorFromContext(ctx)
	if !ok {
		return ErrNoCursor
	}
	return c.Next(ctx, req, resp)
}
