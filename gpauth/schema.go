package gpauth

import (
	"net/url"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/panvpn/go-globalprotect-auth/config"
)

// loginArg is one entry of the positional login-response schema. The
// response arguments carry no names, so the position in this table is the
// only thing that gives a value its meaning.
type loginArg struct {
	name        string
	save        bool   // append name=value to the session cookie
	show        bool   // log the value when present
	warnMissing bool   // anomaly when absent, non-fatal
	errMissing  bool   // anomaly when absent, fatal
	unknown     bool   // no known meaning; any value is an anomaly
	check       string // exact value required when non-empty
}

var loginArgs = []loginArg{
	{unknown: true}, // seemingly always empty
	{name: "authcookie", save: true, errMissing: true},
	{name: "persistent-cookie", warnMissing: true}, // 40 hex digits; persists across sessions
	{name: "portal", save: true, warnMissing: true},
	{name: "user", save: true, errMissing: true},
	{name: "authentication-source", show: true}, // LDAP-auth, AUTH-RADIUS_RSA_OTP, etc.
	{name: "configuration", warnMissing: true},  // usually vsys1 (sometimes vsys2, etc.)
	{name: "domain", save: true, warnMissing: true},
	{unknown: true}, // 4 arguments, seemingly always empty
	{unknown: true},
	{unknown: true},
	{unknown: true},
	{name: "connection-type", errMissing: true, check: "tunnel"},
	{name: "password-expiration-days", show: true}, // days until the password expires, if not -1
	{name: "clientVer", errMissing: true, check: "4100"},
	{name: "preferred-ip", save: true},
	{name: "portal-userauthcookie", show: true},
	{name: "portal-prelogonuserauthcookie", show: true},
	{name: "preferred-ipv6", save: true},
	{name: "usually-equals-4", show: true},       // newer servers send "4" here
	{name: "usually-equals-unknown", show: true}, // newer servers send "unknown" here
}

// appendOpt appends an urlencoded name=value pair, preserving append
// order. net/url's Values.Encode sorts keys, and ordering is significant
// both in the cookie and in submission bodies, hence the manual builder.
func appendOpt(b *strings.Builder, name, value string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(name))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}

// parseLoginResponse validates the positional argument list of a gateway
// login response against the schema and assembles the session cookie from
// the save-flagged values.
//
// The walk continues as long as EITHER side has entries left, so both
// more-than-expected and fewer-than-expected arguments are caught.
// Argument values of "", "(null)" and "-1" all mean "absent". Non-fatal
// anomalies are logged and counted, never escalated: there is no formal
// specification for this protocol and servers vary.
func (c *Client) parseLoginResponse(resp *config.LoginResponse) (string, error) {
	var cookie strings.Builder
	unknownArgs, fatalArgs := 0, 0

	args := resp.Arguments
	for n := 0; n < len(loginArgs) || n < len(args); n++ {
		// Argument 0 is unknown, so its entry is reused for surplus
		// arguments beyond the end of the schema.
		arg := loginArgs[0]
		if n < len(loginArgs) {
			arg = loginArgs[n]
		}

		var value string
		if n < len(args) {
			value = args[n]
			if value == "(null)" || value == "-1" {
				value = ""
			}
		}

		switch {
		case arg.unknown && value != "":
			unknownArgs++
			level.Error(c.logger).Log("msg", "login returned unexpected argument value", "arg", n, "value", value)
		case arg.check != "" && value != arg.check:
			unknownArgs++
			if arg.errMissing {
				fatalArgs++
			}
			level.Error(c.logger).Log("msg", "login returned unexpected value", "name", arg.name, "value", value, "expected", arg.check)
		case (arg.errMissing || arg.warnMissing) && value == "":
			unknownArgs++
			if arg.errMissing {
				fatalArgs++
			}
			level.Error(c.logger).Log("msg", "login returned empty or missing value", "name", arg.name)
		case arg.show && value != "":
			level.Info(c.logger).Log("msg", "login response value", "name", arg.name, "value", value)
		}

		if arg.save && value != "" {
			// Some of the values returned here (e.g. the portal-*cookie
			// pair) must NOT be URL-decoded to be replayed correctly, but
			// the ones saved into the cookie must be, because they are
			// resent as the (redundant) logout parameters. The domain
			// value "%28empty_domain%29" appears frequently in the wild
			// and logout fails unless it is decoded here.
			decoded, err := url.QueryUnescape(value)
			if err != nil {
				return "", errors.Wrapf(ErrProtocol, "could not URL-decode %s=%s", arg.name, value)
			}
			appendOpt(&cookie, arg.name, decoded)
		}
	}
	appendOpt(&cookie, "computer", c.opts.LocalName)

	if unknownArgs > 0 {
		level.Error(c.logger).Log("msg", "please report unexpected login response values upstream",
			"unexpected", unknownArgs, "fatal", fatalArgs)
	}
	if fatalArgs > 0 {
		return "", errors.Wrap(ErrPermissionDenied, "login response failed validation")
	}
	return cookie.String(), nil
}
