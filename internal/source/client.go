package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppiankov/vidwatch/internal/config"
	"github.com/ppiankov/vidwatch/internal/privacy"
)

// ClientOptions configures the shared HTTP client.
type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration // zero means no client-side timeout
	Logger    *slog.Logger
	Redactor  *privacy.Redactor

	// Transport replaces the default round tripper (tests).
	Transport http.RoundTripper
}

// NewClient returns a resty client that sends the User-Agent on every
// request, never retries, and logs each exchange at debug level with
// cookies redacted.
func NewClient(opts ClientOptions) *resty.Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}

	c := resty.New().
		SetHeader("User-Agent", ua).
		SetLogger(restyLogger{log: log})
	if opts.Transport != nil {
		c.SetTransport(opts.Transport)
	}
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}

	redact := opts.Redactor
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		log.Debug("start request",
			"method", r.Method,
			"url", redact.Redact(r.URL),
			"cookie", redact.Redact(r.Header.Get("Cookie")),
		)
		return nil
	})
	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug("request done",
			"method", resp.Request.Method,
			"url", redact.Redact(resp.Request.URL),
			"status", resp.StatusCode(),
			"bytes", len(resp.Body()),
			"elapsed", resp.Time(),
		)
		return nil
	})
	return c
}

// send executes r and returns the body of a 2xx response.
func send(platform string, r *resty.Request, method, url string) ([]byte, error) {
	resp, err := r.Execute(method, url)
	if err != nil {
		return nil, &NetworkError{Platform: platform, Err: err}
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &NetworkError{Platform: platform, Status: code, Err: fmt.Errorf("unexpected status %s", resp.Status())}
	}
	return resp.Body(), nil
}

func decode(platform string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &ParseError{Platform: platform, What: "response body", Err: err}
	}
	return nil
}

// restyLogger routes resty's own warnings into slog.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
