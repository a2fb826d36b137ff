// Package manifest loads route and filter declarations from YAML and applies
// them to a dispatcher, optionally re-applying them whenever the file changes.
//
// A manifest looks like this:
//
//	routes:
//	  - pattern: "/health"
//	    status: 200
//	    body: "ok"
//	    contentType: "text/plain"
//	  - pattern: "/old/.*"
//	    redirect: "/new"
//	filters:
//	  - pattern: "/.*"
//	    use: [trace, logging]
//
// Routes are answered with a static response or a redirect. Filters are
// referenced by name and resolved through a FilterFactory.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidManifest is returned when a manifest cannot be parsed or fails validation.
	ErrInvalidManifest = errors.New("sdispatch(manifest): invalid manifest")
	// ErrUnknownFilter is returned when a manifest references a filter name
	// the FilterFactory does not provide.
	ErrUnknownFilter = errors.New("sdispatch(manifest): unknown filter")
)

// Manifest is a declarative set of routes and filters.
type Manifest struct {
	Routes  []RouteSpec  `yaml:"routes"`
	Filters []FilterSpec `yaml:"filters"`
}

// RouteSpec declares a terminal handler with a static response.
type RouteSpec struct {
	Pattern     string            `yaml:"pattern"`
	Status      int               `yaml:"status,omitempty"`
	Body        string            `yaml:"body,omitempty"`
	ContentType string            `yaml:"contentType,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	// Redirect sends a redirect to this location instead of a body.
	// Status defaults to 302 for redirects.
	Redirect string `yaml:"redirect,omitempty"`
}

// FilterSpec declares the ordered filter list of one pattern.
type FilterSpec struct {
	Pattern string   `yaml:"pattern"`
	Use     []string `yaml:"use"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: manifest path is empty", ErrInvalidManifest)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Validate reports every problem in the manifest at once.
func (m *Manifest) Validate() error {
	var errs error
	routes := make(map[string]bool, len(m.Routes))
	for i, r := range m.Routes {
		errs = multierr.Append(errs, validatePattern("routes", i, r.Pattern))
		if routes[r.Pattern] {
			errs = multierr.Append(errs, fmt.Errorf("routes[%d]: duplicate pattern %q", i, r.Pattern))
		}
		routes[r.Pattern] = true

		if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
			errs = multierr.Append(errs, fmt.Errorf("routes[%d]: invalid status %d", i, r.Status))
		}
		if r.Redirect != "" && r.Body != "" {
			errs = multierr.Append(errs, fmt.Errorf("routes[%d]: redirect and body are mutually exclusive", i))
		}
		if r.Redirect != "" && r.Status != 0 && (r.Status < 300 || r.Status > 399) {
			errs = multierr.Append(errs, fmt.Errorf("routes[%d]: redirect needs a 3xx status, got %d", i, r.Status))
		}
	}

	filters := make(map[string]bool, len(m.Filters))
	for i, f := range m.Filters {
		errs = multierr.Append(errs, validatePattern("filters", i, f.Pattern))
		if filters[f.Pattern] {
			errs = multierr.Append(errs, fmt.Errorf("filters[%d]: duplicate pattern %q", i, f.Pattern))
		}
		filters[f.Pattern] = true

		if len(f.Use) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("filters[%d]: use list is empty", i))
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errs)
	}
	return nil
}

func validatePattern(section string, i int, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s[%d]: pattern is empty", section, i)
	}
	if _, err := pattern.Compile(raw); err != nil {
		return fmt.Errorf("%s[%d]: %w", section, i, err)
	}
	return nil
}

// Handler returns the terminal handler answering with the declared response.
func (r RouteSpec) Handler() common.Handler {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
		if r.Redirect != "" {
			status = http.StatusFound
		}
	}
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	body := []byte(r.Body)
	contentType := r.ContentType
	redirect := r.Redirect

	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		for k, v := range headers {
			resp.Header().Set(k, v)
		}
		if redirect != "" {
			resp.Header().Set("Location", redirect)
			resp.WriteHeader(status)
			return nil
		}
		if contentType != "" {
			resp.Header().Set("Content-Type", contentType)
		}
		resp.WriteHeader(status)
		if len(body) == 0 || req.Method() == http.MethodHead {
			return nil
		}
		_, err := resp.Write(body)
		return err
	})
}
