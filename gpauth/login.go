package gpauth

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/panvpn/go-globalprotect-auth/config"
)

// loginState enumerates the re-entry points of the login loop. The
// distinction that matters: stateCollect re-prompts the user for the
// current form, stateReplay resubmits it silently with the values it
// already carries.
type loginState int

const (
	statePrelogin loginState = iota
	stateCollect
	stateReplay
)

// ObtainCookie is the sole entry point of the authentication flow. It
// returns the session cookie that the tunnel layer needs, or an error from
// the taxonomy in errors.go.
//
// The server role may be hinted in the configured URL path ("portal" or a
// "global-protect..." path vs "gateway" or an "ssl-vpn..." path). Without
// a hint the flow assumes a portal first and falls back to gateway mode
// once if the server says it is not a portal. An alternative secret field
// (for externally-completed SAML) may be appended to the path as
// ":field_name"; known values are portal:portal-userauthcookie and
// gateway:prelogin-cookie.
func (c *Client) ObtainCookie(ctx context.Context) (string, error) {
	lc := &loginContext{}

	path := c.opts.URLPath
	if i := strings.LastIndex(path, ":"); i >= 0 {
		lc.altSecret = path[i+1:]
		path = path[:i]
	}

	switch {
	case path == "portal" || strings.HasPrefix(path, "global-protect"):
		return c.login(ctx, true, path, lc)
	case path == "gateway" || strings.HasPrefix(path, "ssl-vpn"):
		return c.login(ctx, false, path, lc)
	default:
		cookie, err := c.login(ctx, true, path, lc)
		if errors.Is(err, errWrongEndpoint) {
			cookie, err = c.login(ctx, false, path, lc)
			if errors.Is(err, errWrongEndpoint) {
				level.Error(c.logger).Log("msg", "server is neither a GlobalProtect portal nor a gateway")
				err = errors.Wrap(ErrInvalidResponse, "server is neither a GlobalProtect portal nor a gateway")
			}
		}
		return cookie, err
	}
}

// login drives one portal or gateway flow to completion. Portal success
// flips the mode to gateway and usually replays the accepted credentials
// blindly; the blind retry fires at most once per call so a gateway
// rejection after it cannot loop.
func (c *Client) login(ctx context.Context, portal bool, urlpath string, lc *loginContext) (string, error) {
	var cookie string
	blindRetry := false
	state := statePrelogin

	for {
		switch state {
		case statePrelogin:
			body, err := c.submitPrelogin(ctx, portal, urlpath)
			if err != nil {
				return "", err
			}
			err = c.classifyResponse(body, func(root string, body []byte) error {
				if root != "prelogin-response" {
					return errors.Wrapf(ErrInvalidResponse, "expected prelogin-response, got %s", root)
				}
				var pr config.PreloginResponse
				if err := xml.Unmarshal(body, &pr); err != nil {
					return errors.Wrapf(ErrInvalidResponse, "malformed prelogin response: %v", err)
				}
				form, err := c.buildPreloginForm(lc, &pr)
				if err != nil {
					return err
				}
				lc.form = form
				return nil
			}, nil)
			if err != nil {
				return "", err
			}
			state = stateCollect

		case stateCollect:
			if err := c.forms.ProcessForm(lc.form); err != nil {
				return "", err
			}
			state = stateReplay

		case stateReplay:
			if err := c.generateTokencode(lc.form); err != nil {
				return "", err
			}

			body, err := c.submitLogin(ctx, portal, lc)
			if err != nil {
				return "", err
			}

			result := c.classifyResponse(body, func(root string, body []byte) error {
				if portal {
					if root != "policy" {
						return errors.Wrapf(ErrInvalidResponse, "expected portal policy, got %s", root)
					}
					return c.parsePortalConfig(lc, body)
				}
				if root != "jnlp" {
					return errors.Wrapf(ErrInvalidResponse, "expected gateway login response, got %s", root)
				}
				var lr config.LoginResponse
				if err := xml.Unmarshal(body, &lr); err != nil {
					return errors.Wrapf(ErrInvalidResponse, "malformed login response: %v", err)
				}
				ck, err := c.parseLoginResponse(&lr)
				if err != nil {
					return err
				}
				cookie = ck
				return nil
			}, func(prompt, inputStr string) error {
				c.applyChallenge(lc.form, prompt, inputStr)
				return errRepeatForm
			})

			switch {
			case errors.Is(result, ErrUnauthorized):
				// Reuse the same form, blanked. The exception: a rejection
				// came right after a blind retry, in which case giving
				// the user another prompt would loop forever on
				// credentials the portal accepted but the gateway won't.
				lc.form.clearSecrets()
				if blindRetry {
					blindRetry = false
					return "", result
				}
				state = stateCollect

			case errors.Is(result, errRepeatForm):
				c.captureUsername(lc)
				state = stateCollect

			case result == nil && portal:
				c.captureUsername(lc)
				// Portal login succeeded. Blindly retry the same
				// credentials on the gateway if (a) we hold a cookie that
				// should allow automatic retry, OR (b) the portal form was
				// neither challenge auth nor an alt-secret (SAML) form.
				portal = false
				if lc.portalUserAuthCookie != "" || lc.portalPrelogonUserAuthCookie != "" ||
					(lc.form.AuthID != AuthIDChallenge && lc.altSecret == "") {
					blindRetry = true
					level.Debug(c.logger).Log("msg", "portal login succeeded; replaying credentials against gateway")
					state = stateReplay
				} else {
					// The user has to authenticate to the gateway
					// explicitly, from a fresh prelogin.
					state = statePrelogin
				}

			case result == nil:
				c.captureUsername(lc)
				return cookie, nil

			default:
				return "", result
			}
		}
	}
}

// captureUsername records the identity the server just accepted; from then
// on the identity field is pre-filled and hidden.
func (c *Client) captureUsername(lc *loginContext) {
	if lc.username == "" && len(lc.form.Fields) > 0 {
		lc.username = lc.form.Fields[0].Value
	}
}

// generateTokencode runs the OTP collaborator before a submission. A
// generator failure is fatal and disables tokens for the whole session.
func (c *Client) generateTokencode(form *AuthForm) error {
	if c.Tokens == nil || c.tokenBypassed {
		return nil
	}
	if err := c.Tokens.Generate(form); err != nil {
		level.Error(c.logger).Log("msg", "failed to generate OTP tokencode; disabling token", "err", err)
		c.tokenBypassed = true
		return errors.Wrap(ErrOTPGeneration, err.Error())
	}
	return nil
}

// submitPrelogin fetches the form shape for the assumed server role. A
// configured path ending in ".esp" (with or without a query string) is
// used verbatim; anything else is replaced by the role's prelogin
// endpoint.
func (c *Client) submitPrelogin(ctx context.Context, portal bool, urlpath string) ([]byte, error) {
	path := urlpath
	if !keepESPPath(urlpath) {
		prefix := "ssl-vpn"
		if portal {
			prefix = "global-protect"
		}
		path = fmt.Sprintf("%s/prelogin.esp?tmp=tmp&clientVer=4100&clientos=%s", prefix, osName(c.opts.Platform))
	}
	return c.transport.Submit(ctx, "POST", path, "", nil, true)
}

func keepESPPath(path string) bool {
	i := strings.Index(path, ".esp")
	return i >= 0 && (len(path) == i+4 || path[i+4] == '?')
}

// submitLogin posts the filled form to the gateway login endpoint or the
// portal config endpoint. Field order in the body is fixed; servers have
// been seen to care.
func (c *Client) submitLogin(ctx context.Context, portal bool, lc *loginContext) ([]byte, error) {
	var body strings.Builder
	body.WriteString("jnlpReady=jnlpReady&ok=Login&direct=yes&clientVer=4100&prot=https:")

	ipv6 := "yes"
	if c.opts.DisableIPv6 {
		ipv6 = "no"
	}
	appendOpt(&body, "ipv6-support", ipv6)
	appendOpt(&body, "clientos", osName(c.opts.Platform))
	appendOpt(&body, "os-version", c.opts.Platform)
	appendOpt(&body, "server", c.transport.Host())
	appendOpt(&body, "computer", c.opts.LocalName)
	if lc.portalUserAuthCookie != "" {
		appendOpt(&body, "portal-userauthcookie", lc.portalUserAuthCookie)
	}
	if lc.portalPrelogonUserAuthCookie != "" {
		appendOpt(&body, "portal-prelogonuserauthcookie", lc.portalPrelogonUserAuthCookie)
	}
	if c.opts.PreferredIP != "" {
		appendOpt(&body, "preferred-ip", c.opts.PreferredIP)
	}
	if c.opts.PreferredIPv6 != "" {
		appendOpt(&body, "preferred-ipv6", c.opts.PreferredIPv6)
	}
	if lc.form.Action != "" {
		appendOpt(&body, "inputStr", lc.form.Action)
	}
	for _, opt := range lc.form.Fields {
		appendOpt(&body, opt.Name, opt.Value)
	}

	path := "ssl-vpn/login.esp"
	if portal {
		path = "global-protect/getconfig.esp"
	}
	return c.transport.Submit(ctx, "POST", path, contentTypeForm, []byte(body.String()), false)
}
