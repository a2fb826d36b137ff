package middleware

import (
	"context"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the request's RemoteAddr field
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses a custom header specified in the configuration
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	// Source specifies where to extract the client IP from
	Source IPSourceType

	// CustomHeader is the name of the custom header to use when Source is IPSourceCustomHeader
	CustomHeader string

	// TrustProxy determines whether to trust proxy headers like X-Forwarded-For
	// If false, RemoteAddr will be used as a fallback for all sources
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ClientIP returns the client IP stored by ClientIPFilter, or an empty string.
func ClientIP(req common.Request) string {
	if ip, ok := req.Attribute(common.ClientIPAttribute).(string); ok {
		return ip
	}
	return ""
}

// ClientIPFilter creates a filter that extracts the client IP from the request
// and stores it in the request attribute common.ClientIPAttribute.
func ClientIPFilter(config *IPConfig) common.Handler {
	if config == nil {
		config = DefaultIPConfig()
	}

	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		req.SetAttribute(common.ClientIPAttribute, extractClientIP(req, config))
		return router.Next(ctx, req, resp)
	})
}

// extractClientIP extracts the client IP from the request based on the configuration
func extractClientIP(req common.Request, config *IPConfig) string {
	var ip string

	switch config.Source {
	case IPSourceXForwardedFor:
		ip = extractIPFromXForwardedFor(req)
	case IPSourceXRealIP:
		ip = req.Header().Get("X-Real-IP")
	case IPSourceCustomHeader:
		ip = req.Header().Get(config.CustomHeader)
	case IPSourceRemoteAddr:
		ip = req.RemoteAddr()
	default:
		ip = extractIPFromXForwardedFor(req)
	}

	// If we don't trust proxy headers or couldn't extract an IP, fall back to RemoteAddr
	if !config.TrustProxy || ip == "" {
		ip = req.RemoteAddr()
	}

	// Clean up the IP address (remove port if present)
	return cleanIP(ip)
}

// extractIPFromXForwardedFor extracts the client IP from the X-Forwarded-For header.
// The leftmost entry is the original client.
func extractIPFromXForwardedFor(req common.Request) string {
	xff := req.Header().Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// cleanIP removes the port from an IP address if present
func cleanIP(ip string) string {
	// IPv6 addresses with ports are formatted as [IPv6]:port
	if strings.HasPrefix(ip, "[") {
		if end := strings.LastIndex(ip, "]"); end > 0 {
			return ip[:end+1]
		}
	}

	// More than one colon: an IPv6 address without port
	if strings.Count(ip, ":") > 1 {
		return ip
	}

	// IPv4 addresses with ports are formatted as IPv4:port
	if end := strings.LastIndex(ip, ":"); end > 0 {
		return ip[:end]
	}

	return ip
}
