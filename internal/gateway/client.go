package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

// Config carries everything the client needs to talk to the Airtel Money
// open API for one country deployment.
type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	OAuthPath      string
	KeyPath        string
	CollectionPath string
	StatusPath     string // transaction id appended
	Country        string
	Currency       string
	SuccessCode    string // terminal success status_code, "TS"
	Timeout        time.Duration
}

// KeyCache caches the provider's RSA public key between requests. A nil
// implementation is not allowed; use a no-op cache instead.
type KeyCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// NopKeyCache never caches. Used when redis is unavailable.
type NopKeyCache struct{}

func (NopKeyCache) Get(ctx context.Context, key string) (string, bool)            { return "", false }
func (NopKeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) {}

const rsaKeyCacheKey = "airtel:rsa_public_key"

// Client talks to the Airtel Money API: OAuth, RSA key fetch, collections
// and status enquiries.
type Client struct {
	cfg      Config
	http     *http.Client
	tokens   *tokenCache
	keyCache KeyCache
}

func NewClient(cfg Config, keyCache KeyCache) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if keyCache == nil {
		keyCache = NopKeyCache{}
	}
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		keyCache: keyCache,
	}
	c.tokens = newTokenCache(c.fetchToken)
	return c
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	body, err := json.Marshal(models.OAuthRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "client_credentials",
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.OAuthPath, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, apperr.Authf(err, "oauth request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, apperr.Authf(err, "oauth response read failed")
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, apperr.Authf(nil, "oauth rejected: status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var tok models.OAuthResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", 0, apperr.Authf(err, "oauth response malformed")
	}
	if tok.AccessToken == "" {
		return "", 0, apperr.Authf(nil, "oauth response missing access_token")
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return tok.AccessToken, ttl, nil
}

// Token returns a cached or freshly fetched bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// FetchRSAKey returns the provider's PEM public key used to wrap envelope
// keys, consulting the key cache first.
func (c *Client) FetchRSAKey(ctx context.Context) (string, error) {
	if pem, ok := c.keyCache.Get(ctx, rsaKeyCacheKey); ok && pem != "" {
		return pem, nil
	}

	var out struct {
		Data struct {
			Key string `json:"key"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.cfg.KeyPath, nil, nil, &out); err != nil {
		return "", err
	}
	if out.Data.Key == "" {
		return "", apperr.Cryptof(nil, "gateway returned empty RSA key")
	}
	c.keyCache.Set(ctx, rsaKeyCacheKey, out.Data.Key, time.Hour)
	return out.Data.Key, nil
}

// Collect sends the USSD push collection request. Collections are unsigned;
// the gateway does not require the envelope headers on this endpoint. The
// raw request body is returned so the caller can persist it for audit.
func (c *Client) Collect(ctx context.Context, req *models.CollectionRequest) (rawRequest string, resp *models.CollectionResponse, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, err
	}
	resp = &models.CollectionResponse{}
	if err := c.do(ctx, http.MethodPost, c.cfg.CollectionPath, body, nil, resp); err != nil {
		return string(body), nil, err
	}
	return string(body), resp, nil
}

// TransactionStatus queries the terminal outcome of one collection. Status
// enquiries are signed: the empty payload still gets envelope headers.
func (c *Client) TransactionStatus(ctx context.Context, transactionID string) (*models.CollectionResponse, error) {
	pem, err := c.FetchRSAKey(ctx)
	if err != nil {
		return nil, err
	}
	payload := []byte("{}")
	signature, wrappedKey, err := Seal(payload, pem)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"x-signature": signature,
		"x-key":       wrappedKey,
	}

	resp := &models.CollectionResponse{}
	path := strings.TrimSuffix(c.cfg.StatusPath, "/") + "/" + transactionID
	if err := c.do(ctx, http.MethodGet, path, nil, headers, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// IsSuccessCode reports whether a gateway status_code is the terminal
// success code.
func (c *Client) IsSuccessCode(code string) bool {
	return code == c.cfg.SuccessCode
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Country", c.cfg.Country)
	req.Header.Set("X-Currency", c.cfg.Currency)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Gatewayf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Gatewayf(err, "%s %s read failed", method, path)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return apperr.Authf(nil, "%s %s unauthorized: %s", method, path, truncate(raw, 200))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Gatewayf(nil, "%s %s: status %d: %s", method, path, resp.StatusCode, truncate(raw, 200))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperr.Gatewayf(err, "%s %s: malformed response", method, path)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
