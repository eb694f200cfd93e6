// Package entraid extracts user directory records from Microsoft Entra ID
// (Azure AD) through the Graph API, using non-interactive client-credential
// authentication with either an application secret or a certificate.
package entraid

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/utils"
)

const defaultGraphURL = "https://graph.microsoft.com/v1.0/"
const defaultLoginURL = "https://login.microsoftonline.com/"
const defaultPageSize = 999

// DefaultUserFilter restricts extraction to member-type accounts holding at
// least one assigned license. The assignedLicenses/$count clause requires
// the eventual-consistency query hint.
const DefaultUserFilter = "userType eq 'Member' and assignedLicenses/$count ne 0"

var userSelectFields = strings.Join([]string{
	"id",
	"userPrincipalName",
	"displayName",
	"city",
	"country",
	"department",
	"jobTitle",
	"mail",
	"officeLocation",
	"assignedLicenses",
	"assignedPlans",
	"createdDateTime",
	"signInActivity",
}, ",")

type ClientConfig struct {
	ClientOptions utils.ClientOptions `json:"-" yaml:"-"`
	TenantID      string              `json:"tenant_id" yaml:"tenant_id"`
	ClientID      string              `json:"client_id" yaml:"client_id"`
	ClientSecret  string              `json:"client_secret" yaml:"client_secret"`
	// CertificateFile is a PEM file holding the application certificate and
	// its private key. When set, certificate authentication is used and
	// client_secret is ignored.
	CertificateFile       string `json:"certificate_file" yaml:"certificate_file"`
	CertificateThumbprint string `json:"certificate_thumbprint" yaml:"certificate_thumbprint"`
	PageSize              int    `json:"page_size" yaml:"page_size"`
	// GraphURL and LoginURL override the Microsoft endpoints. Used by tests.
	GraphURL string `json:"graph_url" yaml:"graph_url"`
	LoginURL string `json:"login_url" yaml:"login_url"`
}

func (c *ClientConfig) Validate() error {
	if c.TenantID == "" {
		return errors.New("missing tenant_id")
	}
	if c.ClientID == "" {
		return errors.New("missing client_id")
	}
	if c.ClientSecret == "" && c.CertificateFile == "" {
		return errors.New("missing client_secret or certificate_file")
	}
	return nil
}

type Client struct {
	conf       ClientConfig
	graphURL   string
	httpClient *http.Client
	tokens     tokenProvider
}

func NewClient(conf ClientConfig) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.ClientOptions = conf.ClientOptions.WithDefaults()
	if conf.PageSize <= 0 {
		conf.PageSize = defaultPageSize
	}

	graphURL := conf.GraphURL
	if graphURL == "" {
		graphURL = defaultGraphURL
	}
	if !strings.HasSuffix(graphURL, "/") {
		graphURL += "/"
	}
	loginURL := conf.LoginURL
	if loginURL == "" {
		loginURL = defaultLoginURL
	}
	if !strings.HasSuffix(loginURL, "/") {
		loginURL += "/"
	}
	tokenURL := fmt.Sprintf("%s%s/oauth2/v2.0/token", loginURL, conf.TenantID)

	c := &Client{
		conf:     conf,
		graphURL: graphURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).Dial,
			},
		},
	}

	if conf.CertificateFile != "" {
		tokens, err := newCertTokenProvider(tokenURL, conf.ClientID, conf.CertificateFile, conf.CertificateThumbprint, c.httpClient)
		if err != nil {
			return nil, err
		}
		c.tokens = tokens
	} else {
		c.tokens = newSecretTokenProvider(tokenURL, conf.ClientID, conf.ClientSecret)
	}

	return c, nil
}

// usersPage is the Graph list envelope.
type usersPage struct {
	Count    int               `json:"@odata.count"`
	NextLink string            `json:"@odata.nextLink"`
	Value    []json.RawMessage `json:"value"`
}

// UserPager walks the paginated user listing one page at a time. A pager is
// single-use; create a new one to restart the listing from the beginning.
type UserPager struct {
	c       *Client
	nextURL string
	started bool
	done    bool

	// Count is the provider's (approximate, eventually consistent) total,
	// available after the first page.
	Count int
	// Skipped counts records dropped because they could not be mapped.
	Skipped int
}

// NewUserPager prepares a paginated listing of users matching the filter.
// An empty filter uses DefaultUserFilter.
func (c *Client) NewUserPager(filter string) *UserPager {
	if filter == "" {
		filter = DefaultUserFilter
	}
	q := url.Values{}
	q.Set("$filter", filter)
	q.Set("$select", userSelectFields)
	q.Set("$count", "true")
	q.Set("$top", strconv.Itoa(c.conf.PageSize))
	return &UserPager{
		c:       c,
		nextURL: c.graphURL + "users?" + q.Encode(),
	}
}

// NextPage returns the next page of mapped records and whether more pages
// remain. Records that fail mapping are warned about, counted in Skipped
// and dropped; they never fail the page.
func (p *UserPager) NextPage() ([]UserRecord, bool, error) {
	if p.done {
		return nil, false, nil
	}

	page, err := p.c.makeOneListRequest(p.nextURL)
	if err != nil {
		p.done = true
		return nil, false, err
	}
	if !p.started {
		p.Count = page.Count
		p.started = true
	}

	records := make([]UserRecord, 0, len(page.Value))
	for _, raw := range page.Value {
		u, err := mapUserRecord(raw)
		if err != nil {
			p.Skipped++
			p.c.conf.ClientOptions.OnWarning(fmt.Sprintf("skipping unmappable user record: %v", err))
			continue
		}
		records = append(records, u)
	}

	p.nextURL = page.NextLink
	if p.nextURL == "" {
		p.done = true
	}
	return records, !p.done, nil
}

// Users drains the full listing into one flat ordered sequence, reporting
// per-record progress. It returns the records, the number of records that
// were skipped as unmappable, and the first fatal error.
func (c *Client) Users(filter string) ([]UserRecord, int, error) {
	pager := c.NewUserPager(filter)

	var users []UserRecord
	i := 0
	for {
		page, more, err := pager.NextPage()
		if err != nil {
			return nil, pager.Skipped, err
		}
		for _, u := range page {
			i++
			c.conf.ClientOptions.DebugLog(fmt.Sprintf("user %d/%d: %s", i, pager.Count, u.UserPrincipalName))
		}
		users = append(users, page...)
		if !more {
			break
		}
	}
	return users, pager.Skipped, nil
}

func (c *Client) makeOneListRequest(pageURL string) (*usersPage, error) {
	token, err := c.tokens.token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequest(): %v", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", "application/json")
	// Advanced query capabilities ($count, $filter on license count) are
	// only served by the eventually consistent directory replicas.
	req.Header.Set("ConsistencyLevel", "eventual")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http.Client.Do(): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error response from Microsoft API, be sure to verify permissions and Microsoft API status: %s: %s", resp.Status, string(body))
	}

	page := &usersPage{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, fmt.Errorf("graph list api invalid json: %v", err)
	}
	return page, nil
}
