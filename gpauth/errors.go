// Package gpauth implements the client side of the GlobalProtect
// portal/gateway login protocol: prelogin, interactive credential forms,
// challenge (2FA) rounds, portal-to-gateway redirection, and the final
// session cookie used to establish and later tear down a tunnel.
package gpauth

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidResponse means the server body had an unexpected shape.
	ErrInvalidResponse = errors.New("invalid server response")

	// ErrProtocol means a value inside an otherwise well-formed response
	// could not be decoded (e.g. bad base64 in a SAML request).
	ErrProtocol = errors.New("protocol error")

	// ErrUnauthorized means the server rejected the submitted credentials.
	// The login loop handles it by re-prompting; it only escapes
	// ObtainCookie when no further retry is possible.
	ErrUnauthorized = errors.New("authentication rejected")

	// ErrPermissionDenied is fatal: a schema violation in the login
	// response, a blocked SAML flow, or a server-declared permanent
	// failure. A partial cookie must never be reused after this.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCancelled is returned when the user aborts form collection.
	ErrCancelled = errors.New("cancelled by user")

	// ErrOTPGeneration is fatal for the session and disables any further
	// tokencode attempts.
	ErrOTPGeneration = errors.New("tokencode generation failed")
)

// errWrongEndpoint signals that the server told us it does not serve the
// role (portal vs gateway) we assumed. ObtainCookie uses it to fall back
// from portal mode to gateway mode exactly once.
var errWrongEndpoint = errors.New("server does not serve this role")

// errRepeatForm is the control signal emitted when a challenge response
// rewrote the current form in place and it must be collected and
// resubmitted. Never surfaced to callers.
var errRepeatForm = errors.New("form replaced, resubmit")

// SAMLRequiredError reports that the server demands SAML authentication
// and the session carries no evidence that it has already been completed.
// Method is the server-announced mechanism ("REDIRECT" or "POST"); Target
// is the decoded saml-request: a URL for REDIRECT, an HTML document for
// POST. Callers may complete the exchange out of band (see the saml
// package) and retry with the resulting alternative secret field.
type SAMLRequiredError struct {
	Method string
	Target string
}

func (e *SAMLRequiredError) Error() string {
	return fmt.Sprintf("SAML %s authentication is required", e.Method)
}

func (e *SAMLRequiredError) Unwrap() error { return ErrPermissionDenied }
