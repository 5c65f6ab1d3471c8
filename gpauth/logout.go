package gpauth

import (
	"context"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Logout tears down the session on the server side.
//
// To log out successfully the client must send not only the session's
// authcookie but also the portal, user, computer and domain values that
// accompanied the getconfig request: a bunch of irrelevant non-secret
// values. If any of them is wrong or missing, the server silently refuses
// the logout and the authcookie stays valid, which is a security hole in
// the protocol itself, not something this client can fix. The entire
// stored cookie is therefore replayed verbatim.
//
// A refused or malformed logout is logged and returned; callers decide
// whether to treat it as security-relevant, since retrying cannot help at
// this point.
func (c *Client) Logout(ctx context.Context, cookie string) error {
	// The tunnel session must die before the server accepts a logout, so
	// drop the connection and submit over a fresh one.
	if err := c.transport.Reset(); err != nil {
		return errors.Wrap(err, "failed to reset connection for logout")
	}

	body, err := c.transport.Submit(ctx, "POST", "ssl-vpn/logout.esp", contentTypeForm, []byte(cookie), false)
	if err != nil {
		level.Error(c.logger).Log("msg", "logout failed", "err", err)
		return err
	}

	// logout.esp returns <response status="success"> when it worked, and
	// all manner of malformed junk when it didn't.
	if err := c.classifyResponse(body, nil, nil); err != nil {
		level.Error(c.logger).Log("msg", "logout failed", "err", err)
		return errors.Wrap(err, "logout failed")
	}
	level.Info(c.logger).Log("msg", "logout successful")
	return nil
}
