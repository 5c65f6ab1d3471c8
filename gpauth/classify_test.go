package gpauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyChallengeScript(t *testing.T) {
	c := newTestClient(nil, nil)

	var gotPrompt, gotInput string
	err := c.classifyResponse([]byte(challengeJS), nil, func(prompt, inputStr string) error {
		gotPrompt, gotInput = prompt, inputStr
		return errRepeatForm
	})
	assert.ErrorIs(t, err, errRepeatForm)
	assert.Equal(t, "Enter your tokencode", gotPrompt)
	assert.Equal(t, "5912abcd", gotInput)
}

func TestClassifyErrorScript(t *testing.T) {
	c := newTestClient(nil, nil)

	body := `var respStatus = "Error";
var respMsg = "Something broke";`
	err := c.classifyResponse([]byte(body), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Contains(t, err.Error(), "Something broke")
}

func TestClassifyGarbage(t *testing.T) {
	c := newTestClient(nil, nil)

	for _, body := range []string{"", "  ", "hello world", "<html>nope"} {
		err := c.classifyResponse([]byte(body), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidResponse, "body %q", body)
	}
}

func TestClassifyCredentialRejection(t *testing.T) {
	c := newTestClient(nil, nil)

	err := c.classifyResponse([]byte(unauthorizedXML), nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "Invalid username or password")
}

func TestClassifyWrongEndpoint(t *testing.T) {
	c := newTestClient(nil, nil)

	assert.ErrorIs(t, c.classifyResponse([]byte(notPortalXML), nil, nil), errWrongEndpoint)
	assert.ErrorIs(t, c.classifyResponse([]byte(notGatewayXML), nil, nil), errWrongEndpoint)

	// The message hides under <portal> on some servers.
	alt := `<response status="error"><portal>GlobalProtect portal does not exist</portal></response>`
	assert.ErrorIs(t, c.classifyResponse([]byte(alt), nil, nil), errWrongEndpoint)
}

func TestClassifyPermanentFailure(t *testing.T) {
	c := newTestClient(nil, nil)

	body := `<response status="error"><error>Valid client certificate is required</error></response>`
	assert.ErrorIs(t, c.classifyResponse([]byte(body), nil, nil), ErrPermissionDenied)
}

func TestClassifySuccessMarker(t *testing.T) {
	c := newTestClient(nil, nil)
	assert.NoError(t, c.classifyResponse([]byte(logoutSuccessXML), nil, nil))
}

func TestClassifyDispatchesXMLDocuments(t *testing.T) {
	c := newTestClient(nil, nil)

	var gotRoot string
	err := c.classifyResponse([]byte(preloginXML), func(root string, body []byte) error {
		gotRoot = root
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "prelogin-response", gotRoot)

	// Without a handler, a flow document is unexpected (e.g. during logout).
	err = c.classifyResponse([]byte(preloginXML), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClassifyChallengeWithoutHandler(t *testing.T) {
	c := newTestClient(nil, nil)
	err := c.classifyResponse([]byte(challengeJS), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
