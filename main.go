package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/panvpn/go-globalprotect-auth/gpauth"
	"github.com/panvpn/go-globalprotect-auth/saml"
)

func main() {
	var logger log.Logger

	var server = kingpin.Flag("server", "the GlobalProtect portal or gateway address (host[:port][/path])").Short('s').Required().String()
	var ocFile = kingpin.Flag("config", "the file where the OpenConnect auth details will be saved").Short('c').Required().String()
	var serverList = kingpin.Flag("server-list", "optional file where the generated GPPortal server list will be saved").String()
	var platform = kingpin.Flag("os", "client platform name").Default("linux-64").String()
	var preferredIP = kingpin.Flag("preferred-ip", "IPv4 address to request back from the gateway").String()
	var preferredIPv6 = kingpin.Flag("preferred-ipv6", "IPv6 address to request back from the gateway").String()
	var noIPv6 = kingpin.Flag("no-ipv6", "advertise no IPv6 support").Bool()
	var samlBrowser = kingpin.Flag("saml-browser", "complete a required SAML login in a local browser").Bool()
	var doLogout = kingpin.Flag("logout", "log out the session whose cookie is stored in the config file").Bool()
	var logFormat = kingpin.Flag("log-format", "log format").Default("logfmt").Enum("json", "logfmt")
	var logLevel = kingpin.Flag("log-level", "log level [WARNING: 'debug' level will print the login cookie to the console]").Default("info").Enum("info", "warn", "error", "debug", "none")
	kingpin.Parse()

	if *logFormat == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}

	switch *logLevel {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "none":
		logger = level.NewFilter(logger, level.AllowNone())
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	host, urlpath := splitServer(*server)

	opts := gpauth.Options{
		URLPath:       urlpath,
		Platform:      *platform,
		PreferredIP:   *preferredIP,
		PreferredIPv6: *preferredIPv6,
		DisableIPv6:   *noIPv6,
		Logger:        logger,
	}

	transport := gpauth.NewTransport(host, logger)
	prompter := &stdinFormHandler{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	client := gpauth.New(opts, transport, prompter)
	if *serverList != "" {
		client.WriteServerList = func(doc []byte) error {
			return os.WriteFile(*serverList, doc, 0600)
		}
	}

	ctx := context.Background()

	if *doLogout {
		cookie, err := readSavedCookie(*ocFile)
		if err != nil {
			level.Error(logger).Log("msg", "could not read saved cookie", "file", *ocFile, "err", err)
			os.Exit(1)
		}
		if err := client.Logout(ctx, cookie); err != nil {
			// The session may still be alive on the server; worth knowing,
			// not worth a non-zero exit since there is nothing to retry.
			level.Error(logger).Log("msg", "logout was not accepted; the authcookie may still be valid", "err", err)
		}
		return
	}

	cookie, err := client.ObtainCookie(ctx)

	var samlErr *gpauth.SAMLRequiredError
	if errors.As(err, &samlErr) && *samlBrowser {
		result, serr := saml.Complete(logger, samlErr.Method, samlErr.Target, 0)
		if serr != nil {
			level.Error(logger).Log("msg", "SAML authentication failed", "err", serr)
			os.Exit(1)
		}
		opts.URLPath = urlpath + ":" + result.FieldName
		client = gpauth.New(opts, transport, &prefilledFormHandler{result: result, fallback: prompter})
		cookie, err = client.ObtainCookie(ctx)
	}
	if err != nil {
		level.Error(logger).Log("msg", "failed to obtain session cookie", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "obtained session cookie successfully")
	if interval := client.HIPReportInterval(); interval > 0 {
		level.Info(logger).Log("msg", "HIP reports expected", "interval", interval)
	}

	writeOCConfig(logger, cookie, transport.Host(), *ocFile)
}

// splitServer splits "host[:port][/path]" into the host[:port] part and
// the path part, tolerating a scheme prefix.
func splitServer(server string) (host, urlpath string) {
	s := strings.TrimPrefix(strings.TrimPrefix(server, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], strings.Trim(s[i:], "/")
	}
	return s, ""
}

func writeOCConfig(logger log.Logger, cookie, host, ocFile string) {
	content := fmt.Sprintf("cookie=%s\nhost=https://%s/\n", cookie, host)
	if err := os.WriteFile(ocFile, []byte(content), 0600); err != nil {
		level.Error(logger).Log("msg", "failed to write authentication details to file", "file", ocFile, "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "successfully written authentication details to file", "file", ocFile)
}

func readSavedCookie(ocFile string) (string, error) {
	data, err := os.ReadFile(ocFile)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "cookie=") {
			return strings.TrimPrefix(line, "cookie="), nil
		}
	}
	return "", fmt.Errorf("no cookie= line in %s", ocFile)
}

// stdinFormHandler collects form values on the terminal.
type stdinFormHandler struct {
	in  *bufio.Reader
	out *os.File
}

func (h *stdinFormHandler) ProcessForm(form *gpauth.AuthForm) error {
	fmt.Fprintln(h.out, form.Message)
	for _, field := range form.Fields {
		switch field.Kind {
		case gpauth.FieldHidden:
			continue
		case gpauth.FieldSelect:
			for i, choice := range field.Choices {
				fmt.Fprintf(h.out, "  [%d] %s (%s)\n", i+1, choice.Label, choice.Name)
			}
			fmt.Fprintf(h.out, "%s ", field.Label)
			line, err := h.readLine()
			if err != nil {
				return err
			}
			if line == "" {
				continue // keep the default choice
			}
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(field.Choices) {
				return fmt.Errorf("invalid selection %q", line)
			}
			field.Value = field.Choices[n-1].Name
		default:
			fmt.Fprintf(h.out, "%s", field.Label)
			line, err := h.readLine()
			if err != nil {
				return err
			}
			field.Value = line
		}
	}
	return nil
}

func (h *stdinFormHandler) readLine() (string, error) {
	line, err := h.in.ReadString('\n')
	if err != nil {
		return "", gpauth.ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

// prefilledFormHandler injects an out-of-band SAML result into the login
// form and falls back to the terminal for anything else.
type prefilledFormHandler struct {
	result   *saml.Result
	fallback *stdinFormHandler
}

func (h *prefilledFormHandler) ProcessForm(form *gpauth.AuthForm) error {
	secret := form.Field(h.result.FieldName)
	if secret == nil {
		return h.fallback.ProcessForm(form)
	}
	secret.Value = h.result.Secret
	if user := form.Field("user"); user != nil && user.Value == "" {
		user.Value = h.result.Username
	}
	return nil
}
