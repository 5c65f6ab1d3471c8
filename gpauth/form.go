package gpauth

import (
	"encoding/base64"
	"fmt"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/panvpn/go-globalprotect-auth/config"
)

// AuthID identifies which protocol phase produced a form. The values are
// the wire-visible auth_id strings; the login loop keys its retry
// heuristics off them.
type AuthID string

const (
	AuthIDLogin     AuthID = "_login"
	AuthIDChallenge AuthID = "_challenge"
	AuthIDPortal    AuthID = "_portal"
)

// FieldKind classifies a form field for presentation and submission.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldHidden
	FieldPassword
	FieldToken
	FieldSelect
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "TEXT"
	case FieldHidden:
		return "HIDDEN"
	case FieldPassword:
		return "PASSWORD"
	case FieldToken:
		return "TOKEN"
	case FieldSelect:
		return "SELECT"
	}
	return "UNKNOWN"
}

// GatewayChoice is one selectable gateway: Name is the host[:port] used to
// build the redirect URL, Label the human-readable description.
type GatewayChoice struct {
	Name  string
	Label string
}

// FormField is a single input in an AuthForm. Hidden fields always carry a
// pre-filled Value and are never re-prompted.
type FormField struct {
	Name    string
	Label   string
	Kind    FieldKind
	Value   string
	Choices []GatewayChoice // FieldSelect only
}

// AuthForm is the unit of interactive credential collection. Login and
// challenge forms always have two fields: the identity (user) field first
// and the secret second. Portal selection forms have a single select
// field. Action carries the opaque challenge continuation token (inputStr)
// to echo back verbatim on the next submission.
type AuthForm struct {
	Message string
	AuthID  AuthID
	Action  string
	Fields  []*FormField
}

// Field returns the named field, or nil.
func (f *AuthForm) Field(name string) *FormField {
	for _, opt := range f.Fields {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// clearSecrets blanks entered values after a credential rejection. Hidden
// fields keep their values: once an identity has been learned it is never
// re-prompted, only the secret is.
func (f *AuthForm) clearSecrets() {
	for _, opt := range f.Fields {
		if opt.Kind != FieldHidden {
			opt.Value = ""
		}
	}
}

const (
	defaultUsernameLabel = "Username"
	defaultPasswordLabel = "Password"
	defaultLoginMessage  = "Please enter your username and password"
	challengeLabel       = "Challenge: "
)

// loginContext is the mutable session state threaded through the whole
// flow: the username once it has succeeded anywhere, the alternative
// secret field name (for SAML continuation), the opaque portal cookies,
// and the in-flight form.
type loginContext struct {
	username                     string
	altSecret                    string
	portalUserAuthCookie         string
	portalPrelogonUserAuthCookie string
	form                         *AuthForm
}

// buildPreloginForm turns a prelogin response into a 2-field auth form:
//
//  1. username (hidden once it is already known, since it would simply be
//     repeated)
//  2. one secret value: the account password, a challenge (2FA) code, or a
//     cookie obtained from an external SAML flow ("alternative secret"
//     instead of a password)
//
// The challenge continuation token, when one appears later, is shoehorned
// into form.Action.
func (c *Client) buildPreloginForm(lc *loginContext, pr *config.PreloginResponse) (*AuthForm, error) {
	var samlTarget string
	if pr.SAMLRequest != "" {
		decoded, err := base64.StdEncoding.DecodeString(pr.SAMLRequest)
		if err != nil {
			return nil, errors.Wrapf(ErrProtocol, "could not decode SAML request as base64: %v", err)
		}
		samlTarget = string(decoded)
	}

	// The alternative secret field must be specified for SAML, because
	// there is no way to autodetect it.
	if pr.SAMLAuthMethod != "" || samlTarget != "" {
		switch {
		case lc.portalUserAuthCookie != "":
			level.Debug(c.logger).Log("msg", "SAML authentication required; using portal-userauthcookie to continue SAML")
		case lc.portalPrelogonUserAuthCookie != "":
			level.Debug(c.logger).Log("msg", "SAML authentication required; using portal-prelogonuserauthcookie to continue SAML")
		case lc.altSecret != "":
			level.Debug(c.logger).Log("msg", "destination form field was specified; assuming SAML authentication is complete",
				"field", lc.altSecret, "method", pr.SAMLAuthMethod)
		default:
			if pr.SAMLAuthMethod == "REDIRECT" {
				level.Error(c.logger).Log("msg", "SAML authentication is required", "method", pr.SAMLAuthMethod, "url", samlTarget)
			} else {
				level.Error(c.logger).Log("msg", "SAML authentication is required via external script", "method", pr.SAMLAuthMethod)
			}
			level.Error(c.logger).Log("msg", "when SAML authentication is complete, specify the destination form field by appending :field_name to the login path")
			return nil, &SAMLRequiredError{Method: pr.SAMLAuthMethod, Target: samlTarget}
		}
	}

	form := &AuthForm{
		Message: pr.AuthenticationMessage,
		AuthID:  AuthIDLogin,
	}
	if form.Message == "" {
		form.Message = defaultLoginMessage
	}

	user := &FormField{Name: "user", Kind: FieldText}
	if pr.UsernameLabel != "" {
		user.Label = pr.UsernameLabel + ": "
	} else {
		user.Label = defaultUsernameLabel + ": "
	}
	if lc.username != "" {
		user.Kind = FieldHidden
		user.Value = lc.username
		lc.username = ""
	}

	secret := &FormField{Name: "passwd", Kind: FieldPassword}
	switch {
	case lc.altSecret != "":
		secret.Name = lc.altSecret
		secret.Label = lc.altSecret + ": "
	case pr.PasswordLabel != "":
		secret.Label = pr.PasswordLabel + ": "
	default:
		secret.Label = defaultPasswordLabel + ": "
	}

	// Some servers use a password in the first form followed by a token in
	// the second ("challenge") form; others use only a token. There is no
	// reliable way to tell them apart. The guess used here: a non-default
	// password label in the first form means the field is really a token.
	if !c.canGenerateToken(form, secret) && lc.altSecret == "" &&
		pr.PasswordLabel != "" && pr.PasswordLabel != defaultPasswordLabel {
		secret.Kind = FieldToken
	}

	form.Fields = []*FormField{user, secret}

	c.traceForm("prelogin form", form)
	return form, nil
}

// applyChallenge rewrites the in-flight form for a second-round challenge:
// the prompt, continuation token and auth phase are replaced, the secret
// value is cleared, and the identity field goes hidden since its value is
// already known.
func (c *Client) applyChallenge(form *AuthForm, prompt, inputStr string) *AuthForm {
	user, secret := form.Fields[0], form.Fields[1]

	form.Message = prompt
	form.Action = inputStr
	form.AuthID = AuthIDChallenge
	user.Kind = FieldHidden
	secret.Value = ""
	secret.Label = challengeLabel

	// Complement of the prelogin guess: if the secret was treated as a
	// password on the previous round, treat this round's as a token.
	// Two password-shaped prompts in a row do not happen in practice.
	if !c.canGenerateToken(form, secret) && secret.Kind == FieldPassword {
		secret.Kind = FieldToken
	} else {
		secret.Kind = FieldPassword
	}

	c.traceForm("challenge form", form)
	return form
}

func (c *Client) traceForm(what string, form *AuthForm) {
	kv := []interface{}{"msg", what, "auth_id", string(form.AuthID)}
	for i, opt := range form.Fields {
		kv = append(kv, fmt.Sprintf("field%d", i), fmt.Sprintf("%q %s(%s)", opt.Label, opt.Name, opt.Kind))
	}
	if form.Action != "" {
		kv = append(kv, "inputStr", form.Action)
	}
	level.Debug(c.logger).Log(kv...)
}
