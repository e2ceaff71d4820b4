package feed

import (
	"context"
	"net/url"
	"time"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/internal/httpclient"
)

// AuthConfig locates the platform's login and hub endpoints
type AuthConfig struct {
	LoginURL     string
	NegotiateURL string
	WSURL        string
	LoginType    string
	Username     string
	Password     string
	Tenant       string
}

// Credentials are what a fresh login yields
type Credentials struct {
	Token           string
	ConnectionToken string
	URL             string // websocket URL carrying both tokens
}

// Authenticator produces fresh credentials for each connection attempt
type Authenticator interface {
	Authenticate(ctx context.Context) (Credentials, error)
}

// HTTPAuthenticator logs in and negotiates a hub connection over REST
type HTTPAuthenticator struct {
	cfg    AuthConfig
	client *httpclient.Client
}

// NewHTTPAuthenticator creates an authenticator. A nil client uses a 30s timeout.
func NewHTTPAuthenticator(cfg AuthConfig, client *httpclient.Client) *HTTPAuthenticator {
	if client == nil {
		client = httpclient.New(30 * time.Second)
	}
	if cfg.LoginType == "" {
		cfg.LoginType = "RiYSAGovernor"
	}
	return &HTTPAuthenticator{cfg: cfg, client: client}
}

type loginRequest struct {
	LoginType string `json:"loginType"`
	LoginUser string `json:"loginuser"`
	Pass      string `json:"pass"`
	Tenant    string `json:"tenant"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type negotiateResponse struct {
	ConnectionToken string `json:"connectionToken"`
}

// Authenticate performs login then negotiate and builds the websocket URL
func (a *HTTPAuthenticator) Authenticate(ctx context.Context) (Credentials, error) {
	var login loginResponse
	err := a.client.PostJSON(ctx, a.cfg.LoginURL, nil, loginRequest{
		LoginType: a.cfg.LoginType,
		LoginUser: a.cfg.Username,
		Pass:      a.cfg.Password,
		Tenant:    a.cfg.Tenant,
	}, &login)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "login failed")
	}
	if login.Token == "" {
		return Credentials{}, errors.Wrap(errors.ErrMalformedInput, "login returned no token")
	}

	var neg negotiateResponse
	headers := map[string]string{"Authorization": "Bearer " + login.Token}
	if err := a.client.PostJSON(ctx, a.cfg.NegotiateURL, headers, nil, &neg); err != nil {
		return Credentials{}, errors.Wrap(err, "negotiate failed")
	}
	if neg.ConnectionToken == "" {
		return Credentials{}, errors.Wrap(errors.ErrMalformedInput, "negotiate returned no connection token")
	}

	wsURL, err := HubURL(a.cfg.WSURL, neg.ConnectionToken, login.Token)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: login.Token, ConnectionToken: neg.ConnectionToken, URL: wsURL}, nil
}

// HubURL appends the connection query the hub expects to base
func HubURL(base, connectionToken, accessToken string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid websocket url %q", base)
	}
	q := u.Query()
	q.Set("Machine", "WebClient")
	q.Set("Key", "random")
	q.Set("id", connectionToken)
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
