package common

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPRequest is a Request backed by a *http.Request.
type HTTPRequest struct {
	r *http.Request

	mu    sync.RWMutex
	attrs map[string]any
}

// NewHTTPRequest wraps r.
func NewHTTPRequest(r *http.Request) *HTTPRequest {
	return &HTTPRequest{r: r}
}

// Raw returns the wrapped *http.Request.
func (r *HTTPRequest) Raw() *http.Request { return r.r }

// Method returns the HTTP method.
func (r *HTTPRequest) Method() string { return r.r.Method }

// RequestURI returns the URL path of the request.
func (r *HTTPRequest) RequestURI() string { return r.r.URL.Path }

// Header returns the request headers.
func (r *HTTPRequest) Header() http.Header { return r.r.Header }

// RemoteAddr returns the network address of the client.
func (r *HTTPRequest) RemoteAddr() string { return r.r.RemoteAddr }

// Body returns the request body, or http.NoBody when there is none.
func (r *HTTPRequest) Body() io.ReadCloser {
	if r.r.Body == nil {
		return http.NoBody
	}
	return r.r.Body
}

// Attribute returns the named attribute, or nil.
func (r *HTTPRequest) Attribute(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs[name]
}

// SetAttribute stores value under name. A nil value removes the attribute.
func (r *HTTPRequest) SetAttribute(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == nil {
		delete(r.attrs, name)
		return
	}
	if r.attrs == nil {
		r.attrs = make(map[string]any)
	}
	r.attrs[name] = value
}

// MountedRequest is an HTTPRequest served below a context path.
type MountedRequest struct {
	*HTTPRequest
	contextPath string
	servletPath string
}

// Mount splits r's path into contextPath and the servlet path that follows
// it. It returns nil when the path does not live under contextPath.
func Mount(r *HTTPRequest, contextPath string) *MountedRequest {
	path := r.RequestURI()
	if contextPath == "" || !strings.HasPrefix(path, contextPath) {
		return nil
	}
	rest := path[len(contextPath):]
	if rest != "" && rest[0] != '/' && !strings.HasSuffix(contextPath, "/") {
		// "/app" must not claim "/application".
		return nil
	}
	return &MountedRequest{
		HTTPRequest: r,
		contextPath: strings.TrimSuffix(contextPath, "/"),
		servletPath: rest,
	}
}

// ContextPath returns the mount point the request arrived under.
func (m *MountedRequest) ContextPath() string { return m.contextPath }

// ServletPath returns the path below the context path.
func (m *MountedRequest) ServletPath() string { return m.servletPath }
