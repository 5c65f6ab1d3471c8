// Package saml completes a browser-based SAML prelogin. The core login
// flow only reports that SAML is required; this package drives a real
// browser through the identity provider and watches for the values the
// gateway plants in the final page, so the login can continue in-process
// with the prelogin-cookie as its alternative secret.
package saml

import (
	"net/url"
	"regexp"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/mxschmitt/playwright-go"
	"github.com/pkg/errors"
)

// Result is the outcome of a completed SAML exchange. FieldName names the
// login form field the secret must be submitted under.
type Result struct {
	Username  string
	Secret    string
	FieldName string
}

// On success the gateway responds with a page whose body (usually inside
// an HTML comment) carries these pseudo-XML values.
var (
	reAuthStatus     = regexp.MustCompile(`<saml-auth-status>(\d+)</saml-auth-status>`)
	rePreloginCookie = regexp.MustCompile(`<prelogin-cookie>([^<]+)</prelogin-cookie>`)
	reUsername       = regexp.MustCompile(`<saml-username>([^<]+)</saml-username>`)
)

// DefaultTimeout bounds how long Complete waits for the user to finish
// authenticating in the browser.
const DefaultTimeout = 5 * time.Minute

// Complete opens a browser on the SAML request and polls the page content
// until the gateway hands back the prelogin cookie. method is the
// server-announced mechanism: "REDIRECT" targets are URLs, "POST" targets
// are self-posting HTML documents.
func Complete(logger log.Logger, method, target string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "could not launch playwright")
	}
	defer pw.Stop()

	browser, err := pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(false),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not launch Firefox")
	}
	defer browser.Close()

	context, err := browser.NewContext()
	if err != nil {
		return nil, errors.Wrap(err, "could not create browser context")
	}
	page, err := context.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "could not create page")
	}

	dest := target
	if method != "REDIRECT" {
		// POST method: the decoded saml-request is a self-submitting HTML
		// form, not a URL.
		dest = "data:text/html," + url.PathEscape(target)
	}
	if _, err := page.Goto(dest); err != nil {
		return nil, errors.Wrap(err, "could not open SAML request")
	}

	level.Info(logger).Log("msg", "waiting for SAML authentication to complete in the browser")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		content, err := page.Content()
		if err != nil {
			// The page may be mid-navigation; try again shortly.
			time.Sleep(250 * time.Millisecond)
			continue
		}

		if m := rePreloginCookie.FindStringSubmatch(content); m != nil {
			result := &Result{
				Secret:    m[1],
				FieldName: "prelogin-cookie",
			}
			if u := reUsername.FindStringSubmatch(content); u != nil {
				result.Username = u[1]
			}
			level.Info(logger).Log("msg", "received prelogin cookie from browser", "username", result.Username)
			return result, nil
		}
		if m := reAuthStatus.FindStringSubmatch(content); m != nil && m[1] != "1" {
			return nil, errors.Errorf("SAML authentication failed with status %s", m[1])
		}

		time.Sleep(250 * time.Millisecond)
	}
	return nil, errors.New("timed out waiting for SAML authentication")
}
