package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueryRequest identifies a past payment attempt. TransactionDate is the
// CreatedAt of the redirect that started it.
type QueryRequest struct {
	OrderRef        string
	TransactionDate time.Time
	ClientIP        string
	OrderInfo       string
}

type queryDRRequest struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TxnRef          string `json:"vnp_TxnRef"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

type queryDRResponse struct {
	ResponseID        string `json:"vnp_ResponseId"`
	Command           string `json:"vnp_Command"`
	ResponseCode      string `json:"vnp_ResponseCode"`
	Message           string `json:"vnp_Message"`
	TmnCode           string `json:"vnp_TmnCode"`
	TxnRef            string `json:"vnp_TxnRef"`
	Amount            string `json:"vnp_Amount"`
	BankCode          string `json:"vnp_BankCode"`
	PayDate           string `json:"vnp_PayDate"`
	TransactionNo     string `json:"vnp_TransactionNo"`
	TransactionType   string `json:"vnp_TransactionType"`
	TransactionStatus string `json:"vnp_TransactionStatus"`
	OrderInfo         string `json:"vnp_OrderInfo"`
	PromotionCode     string `json:"vnp_PromotionCode"`
	PromotionAmount   string `json:"vnp_PromotionAmount"`
	SecureHash        string `json:"vnp_SecureHash"`
}

// Query API checksums are computed over pipe-joined fields in a fixed order.
func (r queryDRRequest) hashData() string {
	return strings.Join([]string{
		r.RequestID, r.Version, r.Command, r.TmnCode, r.TxnRef,
		r.TransactionDate, r.CreateDate, r.IPAddr, r.OrderInfo,
	}, "|")
}

func (r queryDRResponse) hashData() string {
	return strings.Join([]string{
		r.ResponseID, r.Command, r.ResponseCode, r.Message, r.TmnCode, r.TxnRef,
		r.Amount, r.BankCode, r.PayDate, r.TransactionNo, r.TransactionType,
		r.TransactionStatus, r.OrderInfo, r.PromotionCode, r.PromotionAmount,
	}, "|")
}

const (
	queryNotFoundCode  = "91"
	queryPendingStatus = "01"
)

// QueryTransaction asks the gateway for the settled outcome of a payment.
// Transport failures and 5xx answers wrap ErrGatewayUnavailable.
func (g *VNPay) QueryTransaction(ctx context.Context, req QueryRequest) (CallbackResult, error) {
	if g.cfg.APIURL == "" {
		return CallbackResult{}, errors.New("vnpay: APIURL is not configured")
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	info := req.OrderInfo
	if info == "" {
		info = "Truy van giao dich " + req.OrderRef
	}

	body := queryDRRequest{
		RequestID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Version:         Version,
		Command:         "querydr",
		TmnCode:         g.cfg.TmnCode,
		TxnRef:          req.OrderRef,
		OrderInfo:       info,
		TransactionDate: req.TransactionDate.In(GatewayZone).Format(TimeLayout),
		CreateDate:      g.now().In(GatewayZone).Format(TimeLayout),
		IPAddr:          ip,
	}
	body.SecureHash = Sign(g.cfg.HashSecret, body.hashData())

	payload, err := json.Marshal(body)
	if err != nil {
		return CallbackResult{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return CallbackResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("querydr %s: %v: %w", req.OrderRef, err, ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CallbackResult{}, fmt.Errorf("querydr %s read: %v: %w", req.OrderRef, err, ErrGatewayUnavailable)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return CallbackResult{}, fmt.Errorf("querydr %s: status %d: %w", req.OrderRef, resp.StatusCode, ErrGatewayUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return CallbackResult{}, fmt.Errorf("querydr %s: unexpected status %d", req.OrderRef, resp.StatusCode)
	}

	var answer queryDRResponse
	if err := json.Unmarshal(raw, &answer); err != nil {
		return CallbackResult{}, fmt.Errorf("querydr %s decode: %v: %w", req.OrderRef, err, ErrMalformed)
	}
	if !validSignature(g.cfg.HashSecret, answer.hashData(), answer.SecureHash) {
		return CallbackResult{}, fmt.Errorf("querydr %s: %w", req.OrderRef, ErrInvalidSignature)
	}

	switch {
	case answer.ResponseCode == queryNotFoundCode:
		return CallbackResult{}, fmt.Errorf("querydr %s: %w", req.OrderRef, ErrTransactionNotFound)
	case answer.ResponseCode != SuccessCode:
		return CallbackResult{}, fmt.Errorf("querydr %s: code %s %s", req.OrderRef, answer.ResponseCode, answer.Message)
	case answer.TxnRef != req.OrderRef:
		return CallbackResult{}, fmt.Errorf("querydr %s answered for %s: %w", req.OrderRef, answer.TxnRef, ErrMalformed)
	case answer.TransactionStatus == queryPendingStatus:
		return CallbackResult{}, fmt.Errorf("querydr %s: %w", req.OrderRef, ErrPaymentPending)
	}

	amount, err := strconv.ParseInt(answer.Amount, 10, 64)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("querydr %s amount %q: %w", req.OrderRef, answer.Amount, ErrMalformed)
	}

	return CallbackResult{
		Valid:                  true,
		Success:                answer.TransactionStatus == SuccessCode,
		OrderRef:               answer.TxnRef,
		ExternalTransactionRef: answer.TransactionNo,
		ResponseCode:           answer.TransactionStatus,
		TransactionStatus:      answer.TransactionStatus,
		Amount:                 amount,
		BankCode:               answer.BankCode,
		PayDate:                answer.PayDate,
	}, nil
}
