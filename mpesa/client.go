package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL         string        `envconfig:"MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey     string        `envconfig:"MPESA_CONSUMER_KEY"`
	ConsumerSecret  string        `envconfig:"MPESA_CONSUMER_SECRET"`
	ShortCode       string        `envconfig:"MPESA_SHORT_CODE"`
	Passkey         string        `envconfig:"MPESA_PASSKEY"`
	CallbackURL     string        `envconfig:"MPESA_CALLBACK_URL"`
	AccountRef      string        `envconfig:"MPESA_ACCOUNT_REFERENCE" default:"FLIQ"`
	TransactionDesc string        `envconfig:"MPESA_TRANSACTION_DESC" default:"Fliq order payment"`
	Timeout         time.Duration `envconfig:"MPESA_TIMEOUT" default:"15s"`
}

// LoadConfig reads the gateway configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" || cfg.ShortCode == "" || cfg.Passkey == "" || cfg.CallbackURL == "" {
		return cfg, fmt.Errorf("mpesa configuration incomplete: consumer key/secret, short code, passkey and callback URL are required")
	}
	return cfg, nil
}

// Client talks to the Daraja API. It owns access-token acquisition and
// caching so callers only ever see STKPush.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// accessToken returns a cached bearer token, exchanging the consumer
// key/secret for a fresh one when the cache is empty or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	credential := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+credential)

	body, err := c.doWithRetry(req)
	if err != nil {
		return "", fmt.Errorf("token acquisition failed: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("gateway returned empty access token")
	}

	expiresIn, err := strconv.Atoi(tok.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}
	c.token = tok.AccessToken
	// Renew a minute early so in-flight pushes never carry a stale token.
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn-60) * time.Second)

	return c.token, nil
}

// STKPush asks the gateway to prompt the given phone for payment of amount.
// The returned CheckoutRequestID is the correlation key echoed back on the
// asynchronous callback.
func (c *Client) STKPush(ctx context.Context, phone string, amount decimal.Decimal) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount.StringFixed(2),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountRef,
		TransactionDesc:   c.cfg.TransactionDesc,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.doWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("stk push failed: %w", err)
	}

	var resp STKPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse stk push response: %w", err)
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("gateway rejected stk push (code %s): %s", resp.ResponseCode, resp.ResponseDescription)
	}
	if resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("gateway returned no checkout request id")
	}

	return &resp, nil
}

// doWithRetry performs the request, retrying transport errors and 5xx
// responses with doubling backoff. Client errors (4xx) are never retried:
// a declined or malformed request will not get better by repeating it.
func (c *Client) doWithRetry(req *http.Request) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying gateway request",
				zap.String("url", req.URL.Path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reqBody io.Reader
		if req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			reqBody = b
		}
		attemptReq := req.Clone(req.Context())
		if reqBody != nil {
			attemptReq.Body = io.NopCloser(reqBody)
		}

		resp, err := c.http.Do(attemptReq)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway error (%d): %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gateway rejected request (%d): %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, lastErr
}
