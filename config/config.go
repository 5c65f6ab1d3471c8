package config

import "encoding/xml"

/*******************************************************
Prelogin XML Response ({POST,GET} /{global-protect,ssl-vpn}/prelogin.esp)
**********************************************
  <?xml version="1.0" encoding="UTF-8"?>
  <prelogin-response>
    <status>Success</status>
    <ccusername></ccusername>
    <autosubmit>false</autosubmit>
    <msg></msg>
    <newmsg></newmsg>
    <authentication-message>Enter login credentials</authentication-message>
    <username-label>Username</username-label>
    <password-label>Password</password-label>
    <panos-version>1</panos-version>
    <region>EU</region>
  </prelogin-response>

When the server requires SAML, the response instead carries the auth method
and a base64-encoded request (a redirect URL or a self-posting HTML form):

  <prelogin-response>
    <status>Success</status>
    <saml-auth-method>REDIRECT</saml-auth-method>
    <saml-request>aHR0cHM6Ly9pZHAuZXhhbXBsZS5jb20vc3Nv...</saml-request>
    <region>EU</region>
  </prelogin-response>
*******************************************************/
type PreloginResponse struct {
	XMLName               xml.Name `xml:"prelogin-response"`
	Status                string   `xml:"status"`
	CCUsername            string   `xml:"ccusername"`
	AuthenticationMessage string   `xml:"authentication-message"`
	UsernameLabel         string   `xml:"username-label"`
	PasswordLabel         string   `xml:"password-label"`
	SAMLAuthMethod        string   `xml:"saml-auth-method"`
	SAMLRequest           string   `xml:"saml-request"`
	Region                string   `xml:"region"`
}

/*******************************************************
Gateway Login XML Response (POST /ssl-vpn/login.esp)
**********************************************
  <?xml version="1.0" encoding="UTF-8"?>
  <jnlp>
    <application-desc>
      <argument>(null)</argument>
      <argument>deadbeefcafe0123</argument>   <!-- authcookie -->
      <argument>0123456789abcdef</argument>   <!-- persistent-cookie -->
      <argument>AcmePortal</argument>         <!-- portal -->
      <argument>alice</argument>              <!-- user -->
      <argument>LDAP-auth</argument>          <!-- authentication-source -->
      ...
    </application-desc>
  </jnlp>

The arguments carry no names; their meaning is determined purely by
position. See the login argument schema for the full table.
*******************************************************/
type LoginResponse struct {
	XMLName   xml.Name `xml:"jnlp"`
	Arguments []string `xml:"application-desc>argument"`
}

/*******************************************************
Portal Config XML Response (POST /global-protect/getconfig.esp)
**********************************************
  <?xml version="1.0" encoding="UTF-8"?>
  <policy>
    <portal-name>AcmePortal</portal-name>
    <portal-userauthcookie>empty</portal-userauthcookie>
    <portal-prelogonuserauthcookie>empty</portal-prelogonuserauthcookie>
    <gateways>
      <external>
        <list>
          <entry name="gw1.example.com:443">
            <description>Dublin</description>
            <priority>1</priority>
          </entry>
          <entry name="gw2.example.com">
            <description>Frankfurt</description>
            <priority>2</priority>
          </entry>
        </list>
      </external>
    </gateways>
    <hip-collection>
      <hip-report-interval>3600</hip-report-interval>
    </hip-collection>
    ...lots of client-config policy that only matters to the administrator...
  </policy>
*******************************************************/
type PortalConfig struct {
	XMLName                      xml.Name       `xml:"policy"`
	PortalName                   string         `xml:"portal-name"`
	PortalUserAuthCookie         string         `xml:"portal-userauthcookie"`
	PortalPrelogonUserAuthCookie string         `xml:"portal-prelogonuserauthcookie"`
	HIPReportInterval            string         `xml:"hip-collection>hip-report-interval"`
	Gateways                     []GatewayEntry `xml:"gateways>external>list>entry"`
}

// GatewayEntry is one <entry name="host[:443]"><description>Label</description></entry>.
type GatewayEntry struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description"`
}

/*******************************************************
Status XML Response (errors anywhere; success from /ssl-vpn/logout.esp)
**********************************************
  <?xml version="1.0" encoding="UTF-8"?>
  <response status="error">
    <portal>GlobalProtect Portal</portal>
    <msg>Invalid username or password</msg>
    <error>Invalid username or password</error>
  </response>

  <response status="success">
    <portal>GlobalProtect Portal</portal>
    <user>alice</user>
  </response>

Some servers report the message under <error>, some under <portal>.
*******************************************************/
type StatusResponse struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status,attr"`
	Error   string   `xml:"error"`
	Portal  string   `xml:"portal"`
}
