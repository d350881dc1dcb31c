// Package tlsutil builds outbound HTTP clients.
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment switches for certificate verification.
const (
	EnvInsecure      = "SAJTMASKIN_TLS_INSECURE"
	EnvInsecureHosts = "SAJTMASKIN_TLS_INSECURE_HOSTS"
)

// DefaultTLSConfig returns a TLS config with reasonable defaults.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type loopbackTLSBypassTransport struct {
	secure        http.RoundTripper
	insecure      http.RoundTripper
	insecureAll   bool
	insecureHosts map[string]struct{} // as in URL.Hostname()
}

func (t *loopbackTLSBypassTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.insecureAll {
		return t.insecure.RoundTrip(req)
	}
	if req.URL != nil && req.URL.Scheme == "https" {
		host := req.URL.Hostname()
		if _, ok := t.insecureHosts[host]; ok || isLoopbackHost(host) {
			return t.insecure.RoundTrip(req)
		}
	}
	return t.secure.RoundTrip(req)
}

func cloneDefaultTransport() *http.Transport {
	if dt, ok := http.DefaultTransport.(*http.Transport); ok {
		return dt.Clone()
	}
	return &http.Transport{Proxy: http.ProxyFromEnvironment}
}

// NewHTTPClient creates an HTTP client that verifies TLS normally but accepts
// self-signed certificates on loopback HTTPS targets, which is how local
// generation API mocks are usually served.
//
// SAJTMASKIN_TLS_INSECURE=1 disables verification for every host.
// SAJTMASKIN_TLS_INSECURE_HOSTS adds a comma-separated list of hosts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	secure := cloneDefaultTransport()
	secure.TLSClientConfig = DefaultTLSConfig()

	insecure := cloneDefaultTransport()
	insecureTLS := DefaultTLSConfig()
	insecureTLS.InsecureSkipVerify = true
	insecure.TLSClientConfig = insecureTLS

	return &http.Client{
		Timeout: timeout,
		Transport: &loopbackTLSBypassTransport{
			secure:        secure,
			insecure:      insecure,
			insecureAll:   os.Getenv(EnvInsecure) == "1",
			insecureHosts: parseHosts(os.Getenv(EnvInsecureHosts)),
		},
	}
}

func parseHosts(raw string) map[string]struct{} {
	hosts := map[string]struct{}{}
	for _, host := range strings.Split(raw, ",") {
		host = strings.TrimSpace(host)
		if host != "" {
			hosts[host] = struct{}{}
		}
	}
	return hosts
}
