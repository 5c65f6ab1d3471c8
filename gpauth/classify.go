package gpauth

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/panvpn/go-globalprotect-auth/config"
)

// Challenge (2FA) responses are not XML but a JavaScript fragment of the
// shape:
//
//	var respStatus = "Challenge";
//	var respMsg = "Enter your one-time code";
//	thisForm.inputStr.value = "7871931589...";
//
// respStatus may also be "Error" with the explanation in respMsg.
var (
	jsRespStatus = regexp.MustCompile(`var\s+respStatus\s*=\s*"([^"]*)"`)
	jsRespMsg    = regexp.MustCompile(`var\s+respMsg\s*=\s*"([^"]*)"`)
	jsInputStr   = regexp.MustCompile(`thisForm\.inputStr\.value\s*=\s*"([^"]*)"`)
)

// Error strings the server is known to use for permanent failures; every
// other error message is assumed to mean rejected credentials and handled
// by re-prompting.
var permanentLoginErrors = []string{
	"Invalid authentication cookie",
	"Valid client certificate is required",
	"Allow Automatic Restoration of SSL VPN is disabled",
}

const (
	errNotPortal  = "GlobalProtect portal does not exist"
	errNotGateway = "GlobalProtect gateway does not exist"
)

// rootName sniffs the name of the top-level element of an XML body.
func rootName(body []byte) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, true
		}
	}
}

// classifyResponse decides what a response body is (a protocol XML
// document, a JavaScript-embedded challenge, or an error) and dispatches:
//
//   - onXML receives the root element name and the body for the
//     flow-specific documents (prelogin-response, jnlp, policy);
//   - onChallenge receives the prompt and continuation token of a
//     challenge payload;
//   - <response status="..."> documents are handled here: "success" is the
//     logout success marker, "error" maps onto the error taxonomy.
//
// Nil handlers turn the corresponding shape into ErrInvalidResponse.
func (c *Client) classifyResponse(body []byte, onXML func(root string, body []byte) error, onChallenge func(prompt, inputStr string) error) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.Wrap(ErrInvalidResponse, "empty response from server")
	}

	root, isXML := rootName(body)
	if !isXML {
		return c.classifyJavascript(body, onChallenge)
	}

	if root == "response" {
		var status config.StatusResponse
		if err := xml.Unmarshal(body, &status); err != nil {
			return errors.Wrapf(ErrInvalidResponse, "malformed response document: %v", err)
		}
		return c.classifyStatus(&status)
	}

	if onXML == nil {
		return errors.Wrapf(ErrInvalidResponse, "unexpected %s document", root)
	}
	return onXML(root, body)
}

func (c *Client) classifyJavascript(body []byte, onChallenge func(prompt, inputStr string) error) error {
	status := jsRespStatus.FindSubmatch(body)
	msg := jsRespMsg.FindSubmatch(body)

	switch {
	case status == nil || msg == nil:
		level.Error(c.logger).Log("msg", "failed to parse server response")
		level.Debug(c.logger).Log("msg", "unparseable response", "body", string(body))
		return errors.Wrap(ErrInvalidResponse, "response is neither XML nor a challenge script")
	case string(status[1]) == "Challenge":
		prompt := string(msg[1])
		var inputStr string
		if m := jsInputStr.FindSubmatch(body); m != nil {
			inputStr = string(m[1])
		}
		level.Info(c.logger).Log("msg", "received challenge", "prompt", prompt)
		if onChallenge == nil {
			return errors.Wrap(ErrInvalidResponse, "unexpected challenge response")
		}
		return onChallenge(prompt, inputStr)
	case string(status[1]) == "Error":
		level.Error(c.logger).Log("msg", "server reported error", "error", string(msg[1]))
		return errors.Wrap(ErrInvalidResponse, string(msg[1]))
	default:
		return errors.Wrapf(ErrInvalidResponse, "unknown response status %q", string(status[1]))
	}
}

func (c *Client) classifyStatus(status *config.StatusResponse) error {
	if strings.EqualFold(status.Status, "success") {
		return nil
	}

	// The message hides under <error> on some servers and <portal> on
	// others.
	msg := status.Error
	if msg == "" {
		msg = status.Portal
	}

	switch {
	case msg == errNotPortal || msg == errNotGateway:
		level.Debug(c.logger).Log("msg", msg)
		return errors.Wrap(errWrongEndpoint, msg)
	default:
		for _, perm := range permanentLoginErrors {
			if msg == perm {
				level.Error(c.logger).Log("msg", msg)
				return errors.Wrap(ErrPermissionDenied, msg)
			}
		}
		// Most likely "Invalid username or password" or a login banner.
		level.Error(c.logger).Log("msg", msg)
		return errors.Wrap(ErrUnauthorized, msg)
	}
}
