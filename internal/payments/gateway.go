package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"api_pos/internal/config"

	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

const (
	tokenPath  = "/oauth/v1/generate"
	pushPath   = "/mpesa/stkpush/v1/processrequest"
	timeLayout = "20060102150405"
)

// Gateway is the outbound side of the mobile-money provider.
type Gateway interface {
	Token(ctx context.Context) (string, error)
	Push(ctx context.Context, token string, req PushRequest) (*PushResult, error)
}

// PushRequest asks the payer's phone to approve a payment.
type PushRequest struct {
	Amount            decimal.Decimal
	Phone             string
	SaleID            string
	ReconciliationKey string
}

// PushResult is the gateway's acceptance of a push request.
type PushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// RejectedError means the gateway answered and refused the request, so no
// payment can follow from it. Any other Push error leaves the outcome unknown.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected push request: status %d code %s: %s", e.Status, e.Code, e.Message)
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type faultResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type pushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// Client talks to the STK push API over resty. Access tokens are cached
// until shortly before they expire.
type Client struct {
	cfg  config.Gateway
	http *resty.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClient(cfg config.Gateway) *Client {
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{cfg: cfg, http: h, now: time.Now}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	var out tokenResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&out).
		Get(tokenPath)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("token request: status %d", res.StatusCode())
	}
	if out.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}

	ttl, err := out.ExpiresIn.Int64()
	if err != nil || ttl <= 60 {
		ttl = 3599
	}
	c.token = out.AccessToken
	c.expires = c.now().Add(time.Duration(ttl-60) * time.Second)
	return c.token, nil
}

func (c *Client) Push(ctx context.Context, token string, req PushRequest) (*PushResult, error) {
	callback, err := callbackURL(c.cfg.CallbackURL, req.ReconciliationKey)
	if err != nil {
		return nil, &RejectedError{Code: "config", Message: err.Error()}
	}
	ts := c.now().Format(timeLayout)
	payload := pushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + ts)),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       callback,
		AccountReference:  accountReference(req.SaleID),
		TransactionDesc:   "POS Payment",
	}

	var out PushResult
	var fault faultResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(&out).
		SetError(&fault).
		Post(pushPath)
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	if res.IsError() {
		// 5xx may have been accepted upstream before failing
		if res.StatusCode() >= 500 {
			return nil, fmt.Errorf("push request: status %d: %s", res.StatusCode(), fault.ErrorMessage)
		}
		return nil, &RejectedError{Status: res.StatusCode(), Code: fault.ErrorCode, Message: fault.ErrorMessage}
	}
	if out.ResponseCode != "0" {
		return nil, &RejectedError{Status: res.StatusCode(), Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	return &out, nil
}

// callbackURL appends the reconciliation key so the callback can be matched
// even when the gateway's request id never reached us.
func callbackURL(base, key string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid callback url %q", base)
	}
	q := u.Query()
	q.Set("ref", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func accountReference(saleID string) string {
	if len(saleID) > 8 {
		saleID = saleID[:8]
	}
	return "POS_" + saleID
}
