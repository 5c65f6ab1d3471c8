package gpauth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panvpn/go-globalprotect-auth/config"
)

func TestBuildPreloginFormDefaults(t *testing.T) {
	c := newTestClient(nil, nil)
	lc := &loginContext{}

	form, err := c.buildPreloginForm(lc, &config.PreloginResponse{
		UsernameLabel: "User ID",
	})
	require.NoError(t, err)

	assert.Equal(t, AuthIDLogin, form.AuthID)
	assert.Equal(t, "Please enter your username and password", form.Message)
	require.Len(t, form.Fields, 2)

	user, secret := form.Fields[0], form.Fields[1]
	assert.Equal(t, "user", user.Name)
	assert.Equal(t, "User ID: ", user.Label)
	assert.Equal(t, FieldText, user.Kind)

	assert.Equal(t, "passwd", secret.Name)
	assert.Equal(t, "Password: ", secret.Label)
	assert.Equal(t, FieldPassword, secret.Kind)
}

func TestBuildPreloginFormKnownUsernameGoesHidden(t *testing.T) {
	c := newTestClient(nil, nil)
	lc := &loginContext{username: "alice"}

	form, err := c.buildPreloginForm(lc, &config.PreloginResponse{})
	require.NoError(t, err)

	user := form.Fields[0]
	assert.Equal(t, FieldHidden, user.Kind)
	assert.Equal(t, "alice", user.Value)
	// The context value moves into the field; it is re-captured on success.
	assert.Empty(t, lc.username)
}

func TestBuildPreloginFormTokenHeuristic(t *testing.T) {
	c := newTestClient(nil, nil)

	// A non-default password label means the field is really a token.
	form, err := c.buildPreloginForm(&loginContext{}, &config.PreloginResponse{
		PasswordLabel: "PIN+Token",
	})
	require.NoError(t, err)
	assert.Equal(t, FieldToken, form.Fields[1].Kind)
	assert.Equal(t, "PIN+Token: ", form.Fields[1].Label)

	// The generic label stays a password.
	form, err = c.buildPreloginForm(&loginContext{}, &config.PreloginResponse{
		PasswordLabel: "Password",
	})
	require.NoError(t, err)
	assert.Equal(t, FieldPassword, form.Fields[1].Kind)
}

func TestBuildPreloginFormAltSecret(t *testing.T) {
	c := newTestClient(nil, nil)

	// An alt-secret override names the secret field and suppresses the
	// token heuristic even under a custom label.
	form, err := c.buildPreloginForm(&loginContext{altSecret: "prelogin-cookie"}, &config.PreloginResponse{
		PasswordLabel: "PIN+Token",
	})
	require.NoError(t, err)

	secret := form.Fields[1]
	assert.Equal(t, "prelogin-cookie", secret.Name)
	assert.Equal(t, "prelogin-cookie: ", secret.Label)
	assert.Equal(t, FieldPassword, secret.Kind)
}

func TestBuildPreloginFormSAMLBlocked(t *testing.T) {
	c := newTestClient(nil, nil)

	target := "https://idp.example.com/sso"
	pr := &config.PreloginResponse{
		SAMLAuthMethod: "REDIRECT",
		SAMLRequest:    base64.StdEncoding.EncodeToString([]byte(target)),
	}

	_, err := c.buildPreloginForm(&loginContext{}, pr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	var samlErr *SAMLRequiredError
	require.ErrorAs(t, err, &samlErr)
	assert.Equal(t, "REDIRECT", samlErr.Method)
	assert.Equal(t, target, samlErr.Target)
}

func TestBuildPreloginFormSAMLContinuation(t *testing.T) {
	c := newTestClient(nil, nil)
	pr := &config.PreloginResponse{
		SAMLAuthMethod: "REDIRECT",
		SAMLRequest:    base64.StdEncoding.EncodeToString([]byte("https://idp.example.com/sso")),
	}

	// Any completion signal unblocks the flow: a portal cookie...
	form, err := c.buildPreloginForm(&loginContext{portalUserAuthCookie: "cafe"}, pr)
	require.NoError(t, err)
	require.Len(t, form.Fields, 2)

	// ...or an alt-secret destination field.
	form, err = c.buildPreloginForm(&loginContext{altSecret: "prelogin-cookie"}, pr)
	require.NoError(t, err)
	assert.Equal(t, "prelogin-cookie", form.Fields[1].Name)
}

func TestBuildPreloginFormBadBase64(t *testing.T) {
	c := newTestClient(nil, nil)

	_, err := c.buildPreloginForm(&loginContext{}, &config.PreloginResponse{
		SAMLRequest: "!!not-base64!!",
	})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestApplyChallenge(t *testing.T) {
	c := newTestClient(nil, nil)
	lc := &loginContext{}

	form, err := c.buildPreloginForm(lc, &config.PreloginResponse{})
	require.NoError(t, err)
	form.Fields[0].Value = "alice"
	form.Fields[1].Value = "hunter2"

	c.applyChallenge(form, "Enter your tokencode", "5912abcd")

	assert.Equal(t, AuthIDChallenge, form.AuthID)
	assert.Equal(t, "Enter your tokencode", form.Message)
	assert.Equal(t, "5912abcd", form.Action)

	user, secret := form.Fields[0], form.Fields[1]
	assert.Equal(t, FieldHidden, user.Kind)
	assert.Equal(t, "alice", user.Value)
	assert.Empty(t, secret.Value)
	assert.Equal(t, "Challenge: ", secret.Label)
	// Password on the previous round flips to token on this one.
	assert.Equal(t, FieldToken, secret.Kind)

	// A second challenge flips back.
	c.applyChallenge(form, "And again", "77aa")
	assert.Equal(t, FieldPassword, form.Fields[1].Kind)
	assert.Equal(t, "77aa", form.Action)
}

func TestClearSecretsKeepsHiddenIdentity(t *testing.T) {
	form := &AuthForm{Fields: []*FormField{
		{Name: "user", Kind: FieldHidden, Value: "alice"},
		{Name: "passwd", Kind: FieldPassword, Value: "hunter2"},
	}}
	form.clearSecrets()
	assert.Equal(t, "alice", form.Fields[0].Value)
	assert.Empty(t, form.Fields[1].Value)
}
