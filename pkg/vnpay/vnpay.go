// Package vnpay signs payment URLs and verifies return/IPN callbacks in the VNPAY query string format.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	version      = "2.1.0"
	command      = "pay"
	currencyCode = "VND"
	dateLayout   = "20060102150405"

	// ResponseSuccess is the vnp_ResponseCode / vnp_TransactionStatus of a settled payment.
	ResponseSuccess = "00"
)

var (
	ErrInvalidSignature = errors.New("vnpay: invalid secure hash")
	ErrMissingField     = errors.New("vnpay: missing callback field")
	ErrNotConfigured    = errors.New("vnpay: merchant code or hash secret not configured")
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
}

type Client struct {
	cfg      Config
	now      func() time.Time
	location *time.Location
}

type Option func(*Client)

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		loc = time.FixedZone("ICT", 7*3600)
	}
	c := &Client{cfg: cfg, now: time.Now, location: loc}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// PaymentParams describes one payment attempt. Amount is in whole VND.
type PaymentParams struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	ReturnURL string
	IPAddr    string
}

// Result is a verified callback.
type Result struct {
	TxnRef            string
	TransactionNo     string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	Success           bool
	Params            map[string]string
}

func (c *Client) PaymentURL(p PaymentParams) (string, error) {
	if c.cfg.TmnCode == "" || c.cfg.HashSecret == "" {
		return "", ErrNotConfigured
	}
	if p.TxnRef == "" || p.Amount <= 0 {
		return "", fmt.Errorf("vnpay: txn ref and positive amount required")
	}
	ip := p.IPAddr
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := p.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + p.TxnRef
	}
	now := c.now().In(c.location)

	params := map[string]string{
		"vnp_Version":    version,
		"vnp_Command":    command,
		"vnp_TmnCode":    c.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(p.Amount*100, 10),
		"vnp_CurrCode":   currencyCode,
		"vnp_TxnRef":     p.TxnRef,
		"vnp_OrderInfo":  info,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  p.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": now.Format(dateLayout),
		"vnp_ExpireDate": now.Add(15 * time.Minute).Format(dateLayout),
	}
	query := canonical(params)
	return c.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + c.sign(query), nil
}

// Verify checks vnp_SecureHash over every other vnp_ field and decodes the result.
func (c *Client) Verify(params map[string]string) (*Result, error) {
	if c.cfg.HashSecret == "" {
		return nil, ErrNotConfigured
	}
	given := params["vnp_SecureHash"]
	if given == "" {
		return nil, ErrInvalidSignature
	}
	signed := make(map[string]string, len(params))
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		signed[k] = v
	}
	expected := c.sign(canonical(signed))
	if !hmac.Equal([]byte(strings.ToLower(given)), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	res := &Result{
		TxnRef:            signed["vnp_TxnRef"],
		TransactionNo:     signed["vnp_TransactionNo"],
		ResponseCode:      signed["vnp_ResponseCode"],
		TransactionStatus: signed["vnp_TransactionStatus"],
		Params:            signed,
	}
	if res.TxnRef == "" || res.TransactionNo == "" {
		return nil, ErrMissingField
	}
	amount, err := strconv.ParseInt(signed["vnp_Amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: vnp_Amount", ErrMissingField)
	}
	res.Amount = amount / 100
	res.Success = res.ResponseCode == ResponseSuccess &&
		(res.TransactionStatus == "" || res.TransactionStatus == ResponseSuccess)
	return res, nil
}

// Sign returns the secure hash for params, used by tests and sandbox tooling to fake callbacks.
func (c *Client) Sign(params map[string]string) string {
	return c.sign(canonical(params))
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonical encodes params sorted by key, skipping empty values.
func canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
