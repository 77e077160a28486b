package portal

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/html"

	"github.com/chmdznr/pcsync/pkg/models"
)

// Login performs the PCS form login and returns an authenticated session.
// Every failure is reported as models.ErrAuth.
func Login(ctx context.Context, opts Options, user, password string) (*Session, error) {
	if user == "" || password == "" {
		return nil, goerr.Wrap(models.ErrAuth, "user and password are required")
	}

	s, err := newSession(opts)
	if err != nil {
		return nil, err
	}

	resp, err := s.get(ctx, loginPath)
	if err != nil {
		return nil, goerr.Wrap(models.ErrAuth, "failed to load login page: "+err.Error())
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	drain(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(models.ErrAuth, "failed to parse login page: "+err.Error())
	}

	token, ok := findCSRFToken(doc)
	if !ok {
		return nil, goerr.Wrap(models.ErrAuth, "login token not found; has the login page changed?",
			goerr.V("url", s.opts.BaseURL+loginPath))
	}

	resp, err = s.postForm(ctx, loginPath, url.Values{
		"username":   {user},
		"password":   {password},
		"csrf_token": {token},
	})
	if err != nil {
		return nil, goerr.Wrap(models.ErrAuth, "failed to submit credentials: "+err.Error())
	}
	defer drain(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, goerr.Wrap(models.ErrAuth, "portal rejected login", goerr.V("status", resp.StatusCode))
	}
	after, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	if err == nil && hasPasswordField(after) {
		return nil, goerr.Wrap(models.ErrAuth, "credentials rejected", goerr.V("user", user))
	}

	s.log.Debug().Str("user", user).Msg("logged in")
	return s, nil
}

// findCSRFToken returns the value of the hidden csrf_token input.
func findCSRFToken(doc *html.Node) (string, bool) {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == "csrf_token"
	})
	if n == nil {
		return "", false
	}
	v := attr(n, "value")
	return v, v != ""
}

// hasPasswordField reports whether a page still shows a login form.
func hasPasswordField(doc *html.Node) bool {
	return findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" && strings.EqualFold(attr(n, "type"), "password")
	}) != nil
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
