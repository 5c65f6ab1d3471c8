package gpauth

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/panvpn/go-globalprotect-auth/config"
)

// parsePortalConfig handles a successful portal login (getconfig.esp).
//
// The portal config contains a ton of policy, but almost none of it is
// useful to a client that answers to its user rather than to the VPN
// administrator. The exceptions: the gateway list, the HIP report
// interval, and the opaque portal cookies that let a later gateway login
// skip an already-completed SAML exchange.
//
// After parsing, the user picks a gateway and the transport is retargeted
// at it.
func (c *Client) parsePortalConfig(lc *loginContext, body []byte) error {
	var pc config.PortalConfig
	if err := xml.Unmarshal(body, &pc); err != nil {
		return errors.Wrapf(ErrInvalidResponse, "malformed portal config: %v", err)
	}

	// Blank or literal "empty" cookies mean no cookie at all.
	if v := pc.PortalUserAuthCookie; v != "" && v != "empty" {
		lc.portalUserAuthCookie = v
	}
	if v := pc.PortalPrelogonUserAuthCookie; v != "" && v != "empty" {
		lc.portalPrelogonUserAuthCookie = v
	}

	if pc.HIPReportInterval != "" {
		if sec, err := strconv.Atoi(pc.HIPReportInterval); err == nil {
			if configured := c.HIPReportInterval(); configured > 0 {
				level.Info(c.logger).Log("msg", "ignoring portal's HIP report interval, interval already configured",
					"portal", time.Duration(sec)*time.Second, "configured", configured)
			} else {
				// Reports are observed to arrive 60s after the advertised
				// interval, so report that much earlier.
				c.hipInterval = time.Duration(sec-60) * time.Second
				level.Info(c.logger).Log("msg", "portal set HIP report interval", "interval", time.Duration(sec)*time.Second)
			}
		}
	}

	if len(pc.Gateways) == 0 {
		return errors.Wrap(ErrInvalidResponse, "portal configuration lists no gateway servers")
	}

	choices := make([]GatewayChoice, 0, len(pc.Gateways))
	level.Info(c.logger).Log("msg", "gateway servers available", "count", len(pc.Gateways))
	for _, entry := range pc.Gateways {
		choice := GatewayChoice{Name: entry.Name, Label: entry.Description}
		choices = append(choices, choice)
		level.Info(c.logger).Log("msg", "gateway", "label", choice.Label, "address", choice.Name)
	}

	if c.WriteServerList != nil {
		doc := buildServerList(pc.PortalName, c.transport.Host(), choices)
		if err := c.WriteServerList(doc); err != nil {
			return errors.Wrap(err, "failed to persist server list")
		}
	}

	form := &AuthForm{
		Message: "Please select GlobalProtect gateway.",
		AuthID:  AuthIDPortal,
		Fields: []*FormField{{
			Name:    "gateway",
			Label:   "GATEWAY:",
			Kind:    FieldSelect,
			Value:   choices[0].Name, // default when the user expresses no preference
			Choices: choices,
		}},
	}

	if err := c.forms.ProcessForm(form); err != nil {
		return err
	}

	// Redirect to the chosen gateway (a no-op if it is the same host).
	gateway := form.Fields[0].Value
	if gateway != c.transport.Host() {
		level.Info(c.logger).Log("msg", "redirecting to gateway", "gateway", gateway)
		c.transport.SetHost(gateway)
	}
	return nil
}

// buildServerList generates the small GPPortal server-list document that
// official clients persist: the portal itself plus one entry per gateway.
func buildServerList(portalName, portalHost string, gateways []GatewayChoice) []byte {
	var buf bytes.Buffer
	buf.WriteString("<GPPortal>\n  <ServerList>\n")
	if portalName != "" {
		buf.WriteString("      <HostEntry><HostName>")
		xml.EscapeText(&buf, []byte(portalName))
		fmt.Fprintf(&buf, "</HostName><HostAddress>%s/global-protect</HostAddress></HostEntry>\n", portalHost)
	}
	for _, gw := range gateways {
		if gw.Label == "" {
			continue
		}
		buf.WriteString("      <HostEntry><HostName>")
		xml.EscapeText(&buf, []byte(gw.Label))
		fmt.Fprintf(&buf, "</HostName><HostAddress>%s/ssl-vpn</HostAddress></HostEntry>\n", gw.Name)
	}
	buf.WriteString("  </ServerList>\n</GPPortal>\n")
	return buf.Bytes()
}
