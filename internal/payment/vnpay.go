package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Gateway protocol constants.
const (
	Version       = "2.1.0"
	CurrencyCode  = "VND"
	TimeLayout    = "20060102150405"
	SuccessCode   = "00"
	defaultLocale = "vn"
	orderType     = "other"

	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"
)

// GatewayZone is the gateway's clock (GMT+7). Every timestamp sent to or
// parsed from the gateway uses it.
var GatewayZone = time.FixedZone("GMT+7", 7*60*60)

// Config holds the merchant credentials. HashSecret must never be logged.
type Config struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	ReturnURL   string
	Locale      string
	ExpireAfter time.Duration
	Timeout     time.Duration
}

// RedirectRequest is what the order service knows about a payment attempt.
type RedirectRequest struct {
	OrderRef  string
	Amount    int64
	ClientIP  string
	OrderInfo string
}

// Redirect is a signed URL plus the creation time the gateway will echo back
// as the transaction date.
type Redirect struct {
	URL       string
	CreatedAt time.Time
}

// CallbackResult is the interpreted form of a gateway callback or query answer.
// Success, OrderRef and the other fields are meaningful only when Valid.
type CallbackResult struct {
	Valid                  bool
	Success                bool
	OrderRef               string
	ExternalTransactionRef string
	ResponseCode           string
	TransactionStatus      string
	Amount                 int64
	BankCode               string
	PayDate                string
}

// VNPay adapts the order service to the VNPay signed-URL protocol.
type VNPay struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func NewVNPay(cfg Config, client *http.Client) (*VNPay, error) {
	if cfg.TmnCode == "" || cfg.HashSecret == "" {
		return nil, errors.New("vnpay: TmnCode and HashSecret are required")
	}
	if cfg.PayURL == "" || cfg.ReturnURL == "" {
		return nil, errors.New("vnpay: PayURL and ReturnURL are required")
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &VNPay{cfg: cfg, client: client, now: time.Now}, nil
}

// WithClock replaces the time source.
func (g *VNPay) WithClock(now func() time.Time) *VNPay {
	g.now = now
	return g
}

// RedirectParams assembles the unsigned parameter set for a payment.
func (g *VNPay) RedirectParams(req RedirectRequest, createdAt time.Time) (url.Values, error) {
	if strings.TrimSpace(req.OrderRef) == "" {
		return nil, errors.New("vnpay: order reference is required")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("vnpay: amount must be positive, got %d", req.Amount)
	}
	ip := strings.TrimSpace(req.ClientIP)
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + req.OrderRef
	}

	created := createdAt.In(GatewayZone)
	params := url.Values{}
	params.Set("vnp_Version", Version)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Locale", g.cfg.Locale)
	params.Set("vnp_CurrCode", CurrencyCode)
	params.Set("vnp_TxnRef", req.OrderRef)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", orderType)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount, 10))
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", created.Format(TimeLayout))
	params.Set("vnp_ExpireDate", created.Add(g.cfg.ExpireAfter).Format(TimeLayout))
	return params, nil
}

// BuildRedirectURL signs the canonical parameter string and appends the
// digest as the final parameter. It has no side effects.
func (g *VNPay) BuildRedirectURL(ctx context.Context, req RedirectRequest) (Redirect, error) {
	if err := ctx.Err(); err != nil {
		return Redirect{}, err
	}
	createdAt := g.now()
	params, err := g.RedirectParams(req, createdAt)
	if err != nil {
		return Redirect{}, err
	}

	canonical := Canonicalize(params)
	signed := canonical + "&" + ParamSecureHash + "=" + Sign(g.cfg.HashSecret, canonical)

	sep := "?"
	if strings.Contains(g.cfg.PayURL, "?") {
		sep = "&"
	}
	return Redirect{URL: g.cfg.PayURL + sep + signed, CreatedAt: createdAt}, nil
}

// VerifyCallback recomputes the signature over every vnp_ parameter except
// the signature fields. A mismatch returns Valid=false and a *SignatureError; no
// other field of the result may be trusted in that case.
func (g *VNPay) VerifyCallback(params url.Values) (CallbackResult, error) {
	got := params.Get(ParamSecureHash)
	unsigned := url.Values{}
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") || k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		unsigned[k] = v
	}

	if got == "" || !validSignature(g.cfg.HashSecret, Canonicalize(unsigned), got) {
		return CallbackResult{}, &SignatureError{Params: cloneValues(params)}
	}

	result := CallbackResult{
		Valid:                  true,
		OrderRef:               params.Get("vnp_TxnRef"),
		ExternalTransactionRef: params.Get("vnp_TransactionNo"),
		ResponseCode:           params.Get("vnp_ResponseCode"),
		TransactionStatus:      params.Get("vnp_TransactionStatus"),
		BankCode:               params.Get("vnp_BankCode"),
		PayDate:                params.Get("vnp_PayDate"),
	}
	result.Success = result.ResponseCode == SuccessCode &&
		(result.TransactionStatus == "" || result.TransactionStatus == SuccessCode)

	if result.OrderRef == "" {
		return result, fmt.Errorf("callback without vnp_TxnRef: %w", ErrMalformed)
	}
	amount, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil || amount < 0 {
		return result, fmt.Errorf("callback amount %q: %w", params.Get("vnp_Amount"), ErrMalformed)
	}
	result.Amount = amount
	return result, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
