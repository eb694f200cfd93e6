package entraid

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const scope = "https://graph.microsoft.com/.default"
const assertionType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// AuthenticationError wraps an identity-provider credential or certificate
// rejection. It is fatal to the run: a bad credential is not transient.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("identity provider authentication: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// tokenProvider yields a bearer token for Graph requests.
type tokenProvider interface {
	token() (string, error)
}

// secretTokenProvider authenticates with an application client secret via
// the standard OAuth2 client-credentials flow.
type secretTokenProvider struct {
	ts oauth2.TokenSource
}

func newSecretTokenProvider(tokenURL string, clientID string, clientSecret string) *secretTokenProvider {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
	}
	return &secretTokenProvider{ts: conf.TokenSource(context.Background())}
}

func (p *secretTokenProvider) token() (string, error) {
	t, err := p.ts.Token()
	if err != nil {
		return "", &AuthenticationError{Err: err}
	}
	return t.AccessToken, nil
}

// certTokenProvider authenticates with an application certificate: it signs
// a short-lived RS256 client assertion with the certificate's private key
// and exchanges it at the token endpoint. No interactive login.
type certTokenProvider struct {
	tokenURL   string
	clientID   string
	cert       *x509.Certificate
	key        *rsa.PrivateKey
	httpClient *http.Client

	accessToken string
	expiresAt   time.Time
}

func newCertTokenProvider(tokenURL string, clientID string, certFile string, thumbprint string, httpClient *http.Client) (*certTokenProvider, error) {
	cert, key, err := loadCertificate(certFile)
	if err != nil {
		return nil, err
	}

	if thumbprint != "" {
		have := hex.EncodeToString(certThumbprint(cert))
		want := strings.ToLower(strings.ReplaceAll(thumbprint, ":", ""))
		if have != want {
			return nil, fmt.Errorf("certificate thumbprint mismatch: file has %s, config expects %s", have, want)
		}
	}

	return &certTokenProvider{
		tokenURL:   tokenURL,
		clientID:   clientID,
		cert:       cert,
		key:        key,
		httpClient: httpClient,
	}, nil
}

// loadCertificate reads a PEM file holding the application certificate and
// its RSA private key (PKCS#1 or PKCS#8).
func loadCertificate(path string) (*x509.Certificate, *rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading certificate file: %v", err)
	}

	var cert *x509.Certificate
	var key *rsa.PrivateKey
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing certificate: %v", err)
			}
			cert = c
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing private key: %v", err)
			}
			key = k
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing private key: %v", err)
			}
			rsaKey, ok := k.(*rsa.PrivateKey)
			if !ok {
				return nil, nil, errors.New("private key is not RSA")
			}
			key = rsaKey
		}
	}

	if cert == nil {
		return nil, nil, errors.New("no CERTIFICATE block in certificate file")
	}
	if key == nil {
		return nil, nil, errors.New("no private key block in certificate file")
	}
	return cert, key, nil
}

// certThumbprint is the SHA-1 digest of the DER certificate, the value Azure
// AD displays as the certificate thumbprint.
func certThumbprint(cert *x509.Certificate) []byte {
	sum := sha1.Sum(cert.Raw)
	return sum[:]
}

// assertion builds the signed client assertion JWT. The x5t header carries
// the base64url certificate thumbprint the token endpoint matches against
// the registered certificate.
func (p *certTokenProvider) assertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"aud": p.tokenURL,
		"iss": p.clientID,
		"sub": p.clientID,
		"jti": uuid.NewString(),
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["x5t"] = base64.RawURLEncoding.EncodeToString(certThumbprint(p.cert))
	return t.SignedString(p.key)
}

func (p *certTokenProvider) token() (string, error) {
	if p.accessToken != "" && time.Now().Before(p.expiresAt) {
		return p.accessToken, nil
	}

	a, err := p.assertion()
	if err != nil {
		return "", &AuthenticationError{Err: fmt.Errorf("signing client assertion: %v", err)}
	}

	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("scope", scope)
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", assertionType)
	form.Set("client_assertion", a)

	resp, err := p.httpClient.PostForm(p.tokenURL, form)
	if err != nil {
		return "", &AuthenticationError{Err: fmt.Errorf("http.Client.PostForm(): %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthenticationError{Err: fmt.Errorf("reading token response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthenticationError{Err: fmt.Errorf("token endpoint non-200: %s: %s", resp.Status, string(body))}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &AuthenticationError{Err: fmt.Errorf("token endpoint invalid json: %v", err)}
	}
	if result.AccessToken == "" {
		return "", &AuthenticationError{Err: errors.New("no bearer token returned")}
	}

	p.accessToken = result.AccessToken
	p.expiresAt = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - 1*time.Minute)
	return p.accessToken, nil
}
