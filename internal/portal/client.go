// Package portal talks to the PCS conference management portal.
//
// A Session is the authenticated capability: it carries its own cookie
// jar and HTTP clients and is passed explicitly to whoever needs it.
// Page requests (login, spreadsheet, track list) go through a retrying
// client; file transfers never retry, a failed transfer is handled by the
// sync driver with a fresh spreadsheet.
package portal

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/chmdznr/pcsync/internal/logging"
)

const (
	DefaultBaseURL        = "https://new.precisionconference.com"
	DefaultConnectTimeout = 10 * time.Second

	loginPath     = "/user/login"
	trackListPath = "/get_table?table_id=user_chairing&conf_id=&type_id="
	pageTimeout   = 2 * time.Minute
)

// Options configure how a session is established.
type Options struct {
	BaseURL string
	// ConnectTimeout bounds dialing, TLS handshake and waiting for response
	// headers. Reading a response body has no deadline.
	ConnectTimeout time.Duration
	// Retries is the retry budget for page requests. Transfers never retry.
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryWaitMin <= 0 {
		o.RetryWaitMin = 500 * time.Millisecond
	}
	if o.RetryWaitMax <= 0 {
		o.RetryWaitMax = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return o
}

// Session is an authenticated portal session.
type Session struct {
	opts     Options
	jar      http.CookieJar
	page     *http.Client
	transfer *http.Client
	log      *logging.Logger
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func newSession(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cookie jar")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: tr, Jar: jar, Timeout: pageTimeout}
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = &retryLogger{log: opts.Logger}

	return &Session{
		opts:     opts,
		jar:      jar,
		page:     retryClient.StandardClient(),
		transfer: &http.Client{Transport: tr, Jar: jar},
		log:      opts.Logger,
	}, nil
}

// BaseURL returns the portal root the session talks to.
func (s *Session) BaseURL() string {
	return s.opts.BaseURL
}

func (s *Session) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+path, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	return s.page.Do(req)
}

func (s *Session) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.page.Do(req)
}

// drain discards the rest of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
