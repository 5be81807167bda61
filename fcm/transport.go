package fcm

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// redactedFormKeys hold tokens that must not reach the logs in full.
var redactedFormKeys = []string{"X-apns_token", "token"}

// debugTransport logs GCM traffic at debug level with secrets redacted.
type debugTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// newDebugClient wraps base so that every exchange is logged.
func newDebugClient(base *http.Client, logger *slog.Logger) *http.Client {
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Transport: &debugTransport{next: next, logger: logger},
		Timeout:   base.Timeout,
	}
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []any{"url", req.URL.String()}
	for name, values := range req.Header {
		v := strings.Join(values, ", ")
		if strings.EqualFold(name, "Authorization") {
			v = redactAuthorization(v)
		}
		attrs = append(attrs, slog.String("header."+name, v))
	}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		attrs = append(attrs, bodyAttrs(req.Header.Get("Content-Type"), body)...)
	}
	t.logger.Debug(">>> "+req.Method, attrs...)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("<<< Error", "url", req.URL.String(), "error", err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	t.logger.Debug("<<< Response", append([]any{"status", resp.StatusCode, "url", req.URL.String()},
		bodyAttrs(resp.Header.Get("Content-Type"), body)...)...)
	return resp, nil
}

// redactAuthorization keeps the scheme only ("AidLogin ***").
func redactAuthorization(v string) string {
	scheme, _, found := strings.Cut(v, " ")
	if !found {
		return "***"
	}
	return scheme + " ***"
}

func bodyAttrs(contentType string, body []byte) []any {
	if strings.Contains(contentType, "protobuf") {
		return []any{"length", len(body)}
	}
	return []any{"length", len(body), "data", truncate(redactForm(string(body)), 2000)}
}

// redactForm shortens token values in a form-encoded body. Other bodies are
// returned unchanged.
func redactForm(body string) string {
	if !strings.Contains(body, "=") {
		return body
	}
	values, err := url.ParseQuery(strings.TrimSpace(body))
	if err != nil {
		return body
	}
	changed := false
	for _, key := range redactedFormKeys {
		if v := values.Get(key); v != "" {
			values.Set(key, truncate(v, 8)+"...")
			changed = true
		}
	}
	if !changed {
		return body
	}
	return values.Encode()
}

// truncate returns the first maxLen characters of s, or s itself if shorter.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
