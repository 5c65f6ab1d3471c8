package gpauth

import (
	"context"
	"os"
	"time"

	"github.com/go-kit/kit/log"
)

// Transport performs the HTTPS round trips. Connection setup, TLS,
// timeouts and redirect following all live behind this interface; the
// login flow treats its failures as opaque terminal errors.
type Transport interface {
	// Submit sends one request against the current target host. path is
	// relative to the host root and may carry a query string. GlobalProtect
	// servers deliver protocol errors in the body of non-2xx responses, so
	// Submit must return the body rather than failing on HTTP status alone.
	Submit(ctx context.Context, method, path, contentType string, body []byte, followRedirects bool) ([]byte, error)

	// Reset closes the underlying connection so the next Submit opens a
	// fresh one. Logout requires this to kill the tunnel session first.
	Reset() error

	// Host reports the current target host[:port]; SetHost retargets it
	// (portal-to-gateway redirection).
	Host() string
	SetHost(host string)
}

// FormHandler presents an AuthForm to the user (or automation) and fills
// in its field values. It returns ErrCancelled when the user aborts; that
// aborts the whole flow.
type FormHandler interface {
	ProcessForm(form *AuthForm) error
}

// TokenGenerator is pluggable OTP support. CanGenerate is consulted by the
// password-vs-token form heuristics; Generate fills the token field before
// submission. A Generate failure is fatal for the session and disables
// further attempts.
type TokenGenerator interface {
	CanGenerate(form *AuthForm, field *FormField) bool
	Generate(form *AuthForm) error
}

// Options carries the caller-supplied configuration for one login flow.
type Options struct {
	// URLPath is the path component of the configured server URL. It may
	// hint the server role ("portal"/"global-protect..." vs
	// "gateway"/"ssl-vpn...") and may carry an alternative secret field as
	// a ":field_name" suffix.
	URLPath string

	// Platform is the client platform name, e.g. "linux-64"; it is
	// translated to the OS names GlobalProtect clients emit.
	Platform string

	// LocalName is the local hostname, sent as the "computer" value and
	// appended to the session cookie. Defaults to os.Hostname.
	LocalName string

	PreferredIP   string
	PreferredIPv6 string
	DisableIPv6   bool

	// HIPReportInterval, when nonzero, overrides whatever interval the
	// portal advertises.
	HIPReportInterval time.Duration

	Logger log.Logger
}

// Client drives the authentication flow. Transport and Forms are
// required; Tokens and WriteServerList are optional collaborators.
type Client struct {
	transport Transport
	forms     FormHandler
	logger    log.Logger
	opts      Options

	// Tokens generates OTP tokencodes when the server asks for one.
	Tokens TokenGenerator

	// WriteServerList, when set, receives the generated GPPortal server
	// list document after a successful portal config fetch.
	WriteServerList func([]byte) error

	hipInterval   time.Duration
	tokenBypassed bool
}

// New builds a Client. The flow is strictly sequential; a Client must not
// be shared between concurrent logins.
func New(opts Options, transport Transport, forms FormHandler) *Client {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.LocalName == "" {
		opts.LocalName, _ = os.Hostname()
	}
	if opts.Platform == "" {
		opts.Platform = "linux-64"
	}
	return &Client{
		transport: transport,
		forms:     forms,
		logger:    opts.Logger,
		opts:      opts,
	}
}

// HIPReportInterval reports the effective HIP reporting cadence: the
// caller's override if one was configured, otherwise the value adopted
// from the portal (its advertised interval minus the 60 seconds by which
// reports are observed to arrive late). Zero if neither is known.
func (c *Client) HIPReportInterval() time.Duration {
	if c.opts.HIPReportInterval > 0 {
		return c.opts.HIPReportInterval
	}
	return c.hipInterval
}

func (c *Client) canGenerateToken(form *AuthForm, field *FormField) bool {
	return c.Tokens != nil && !c.tokenBypassed && c.Tokens.CanGenerate(form, field)
}

// osName translates platform names into the values known to be emitted by
// GlobalProtect clients.
func osName(platform string) string {
	switch platform {
	case "mac-intel", "apple-ios":
		return "Mac"
	case "linux-64", "linux", "android":
		return "Linux"
	default:
		return "Windows"
	}
}
