package gpauth

import (
	"context"
	"fmt"
	"strings"
)

// fakeTransport scripts server responses by request path and records every
// submission for assertions.
type recordedRequest struct {
	method          string
	path            string
	contentType     string
	body            string
	followRedirects bool
}

type fakeTransport struct {
	host     string
	respond  func(path, body string) (string, error)
	requests []recordedRequest
	resets   int
}

func (t *fakeTransport) Submit(_ context.Context, method, path, contentType string, body []byte, followRedirects bool) ([]byte, error) {
	t.requests = append(t.requests, recordedRequest{
		method:          method,
		path:            path,
		contentType:     contentType,
		body:            string(body),
		followRedirects: followRedirects,
	})
	resp, err := t.respond(path, string(body))
	return []byte(resp), err
}

func (t *fakeTransport) Reset() error     { t.resets++; return nil }
func (t *fakeTransport) Host() string     { return t.host }
func (t *fakeTransport) SetHost(h string) { t.host = h }

// scriptedForms runs one fill function per ProcessForm call, in order.
type scriptedForms struct {
	fill  []func(*AuthForm) error
	calls int
}

func (s *scriptedForms) ProcessForm(form *AuthForm) error {
	if s.calls >= len(s.fill) {
		return fmt.Errorf("unexpected form collection #%d (%s)", s.calls+1, form.AuthID)
	}
	fn := s.fill[s.calls]
	s.calls++
	return fn(form)
}

func fillCredentials(user, secret string) func(*AuthForm) error {
	return func(form *AuthForm) error {
		if f := form.Fields[0]; f.Kind != FieldHidden {
			f.Value = user
		}
		form.Fields[1].Value = secret
		return nil
	}
}

func selectGateway(name string) func(*AuthForm) error {
	return func(form *AuthForm) error {
		form.Fields[0].Value = name
		return nil
	}
}

// Response fixtures.

const preloginXML = `<?xml version="1.0" encoding="UTF-8"?>
<prelogin-response>
  <status>Success</status>
  <authentication-message>Enter login credentials</authentication-message>
  <username-label>Username</username-label>
  <password-label>Password</password-label>
  <region>EU</region>
</prelogin-response>`

const unauthorizedXML = `<response status="error"><error>Invalid username or password</error></response>`

const notPortalXML = `<response status="error"><error>GlobalProtect portal does not exist</error></response>`

const notGatewayXML = `<response status="error"><error>GlobalProtect gateway does not exist</error></response>`

const logoutSuccessXML = `<response status="success"><portal>AcmePortal</portal><user>alice</user></response>`

const portalConfigXML = `<?xml version="1.0" encoding="UTF-8"?>
<policy>
  <portal-name>AcmePortal</portal-name>
  <portal-userauthcookie>0123456789abcdef</portal-userauthcookie>
  <portal-prelogonuserauthcookie>empty</portal-prelogonuserauthcookie>
  <gateways>
    <external>
      <list>
        <entry name="gw1.example.com:443"><description>Dublin</description></entry>
        <entry name="gw2.example.com"><description>Frankfurt</description></entry>
      </list>
    </external>
  </gateways>
  <hip-collection>
    <hip-report-interval>3600</hip-report-interval>
  </hip-collection>
</policy>`

const challengeJS = `var respStatus = "Challenge";
var respMsg = "Enter your tokencode";
thisForm.inputStr.value = "5912abcd";`

// loginResponseXML builds a jnlp document from positional argument values.
func loginResponseXML(args []string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<jnlp><application-desc>")
	for _, a := range args {
		b.WriteString("<argument>")
		b.WriteString(a)
		b.WriteString("</argument>")
	}
	b.WriteString("</application-desc></jnlp>")
	return b.String()
}

// goodLoginArgs is a typical successful gateway login argument list.
func goodLoginArgs() []string {
	return []string{
		"",
		"abc123",
		strings.Repeat("deadbeef", 10),
		"Acme",
		"alice",
		"LDAP-auth",
		"vsys1",
		"",
		"",
		"",
		"",
		"",
		"tunnel",
		"-1",
		"4100",
		"10.0.0.5",
		"",
		"",
		"",
		"",
		"",
	}
}

func newTestClient(forms FormHandler, transport Transport) *Client {
	return New(Options{LocalName: "testhost", Platform: "linux-64"}, transport, forms)
}
