package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// IPN is the server-to-server payment result MoMo posts to the ipnUrl.
type IPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Succeeded reports whether the gateway captured the payment. 9000 only
// authorizes funds and is not final for captureWallet requests.
func (p IPN) Succeeded() bool { return p.ResultCode == 0 }

func (p IPN) TransIDString() string { return strconv.FormatInt(p.TransID, 10) }

type kv struct{ k, v string }

func canonical(pairs []kv) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA256 of raw under secret.
func Sign(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func ipnRaw(accessKey string, p IPN) string {
	return canonical([]kv{
		{"accessKey", accessKey},
		{"amount", strconv.FormatInt(p.Amount, 10)},
		{"extraData", p.ExtraData},
		{"message", p.Message},
		{"orderId", p.OrderID},
		{"orderInfo", p.OrderInfo},
		{"orderType", p.OrderType},
		{"partnerCode", p.PartnerCode},
		{"payType", p.PayType},
		{"requestId", p.RequestID},
		{"responseTime", strconv.FormatInt(p.ResponseTime, 10)},
		{"resultCode", strconv.Itoa(p.ResultCode)},
		{"transId", strconv.FormatInt(p.TransID, 10)},
	})
}

// SignIPN computes the signature MoMo puts on an IPN.
func SignIPN(cfg Config, p IPN) string { return Sign(cfg.SecretKey, ipnRaw(cfg.AccessKey, p)) }

// VerifyIPN recomputes the IPN signature and compares it in constant time.
func VerifyIPN(cfg Config, p IPN) bool {
	if cfg.SecretKey == "" || p.Signature == "" {
		return false
	}
	want := SignIPN(cfg, p)
	return hmac.Equal([]byte(want), []byte(p.Signature))
}

func createRaw(cfg Config, r CreatePaymentRequest, requestID string) string {
	return canonical([]kv{
		{"accessKey", cfg.AccessKey},
		{"amount", strconv.FormatInt(r.Amount, 10)},
		{"extraData", r.ExtraData},
		{"ipnUrl", cfg.IPNURL},
		{"orderId", r.OrderID},
		{"orderInfo", r.OrderInfo},
		{"partnerCode", cfg.PartnerCode},
		{"redirectUrl", cfg.RedirectURL},
		{"requestId", requestID},
		{"requestType", cfg.RequestType},
	})
}
