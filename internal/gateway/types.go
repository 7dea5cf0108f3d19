package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status is the closed set of collection statuses the gateway reports.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusSettled    Status = "SETTLED"
)

// ParseStatus converts a raw status string, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusProcessing, StatusSuccess, StatusFailed, StatusSettled:
		return s, nil
	}
	return "", fmt.Errorf("unknown gateway status %q", raw)
}

// UnmarshalJSON fails on any status outside the closed set.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Succeeded reports whether money has been collected.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusSettled
}

// Amount is an integer amount in minor units. It decodes from a JSON number
// or a numeric string; fractional values are rejected.
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*a = Amount(v)
		return nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return fmt.Errorf("invalid amount %q", raw)
	}
	*a = Amount(int64(f))
	return nil
}

// CollectionRequest is the body shared by the preview and push calls.
type CollectionRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	OrderReference string `json:"orderReference"`
}

// ActiveMethod is one channel the gateway can currently collect through.
type ActiveMethod struct {
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Fee     *Amount `json:"fee,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Sender identifies the account holder the gateway resolved for the phone.
type Sender struct {
	AccountName     string `json:"accountName"`
	AccountNumber   string `json:"accountNumber"`
	AccountProvider string `json:"accountProvider"`
}

// PreviewResult is the response to PreviewCollection.
type PreviewResult struct {
	ActiveMethods []ActiveMethod `json:"activeMethods"`
	Sender        *Sender        `json:"sender,omitempty"`
}

// Available returns the methods that can accept a push right now.
func (p *PreviewResult) Available() []ActiveMethod {
	var out []ActiveMethod
	for _, m := range p.ActiveMethods {
		if m.Status == "" || strings.EqualFold(m.Status, "AVAILABLE") {
			out = append(out, m)
		}
	}
	return out
}

// PushResult is the response to PushCollection. SUCCESS here only means the
// prompt was accepted; money is confirmed by a webhook or status query.
type PushResult struct {
	ID                string  `json:"id"`
	Status            Status  `json:"status"`
	OrderReference    string  `json:"orderReference"`
	CollectedAmount   *Amount `json:"collectedAmount,omitempty"`
	CollectedCurrency string  `json:"collectedCurrency"`
	CreatedAt         string  `json:"createdAt"`
	TransactionID     string  `json:"transactionId,omitempty"`
}

// StatusResult is the response to QueryStatus.
type StatusResult struct {
	ID                string `json:"id"`
	Status            Status `json:"status"`
	PaymentReference  string `json:"paymentReference"`
	OrderReference    string `json:"orderReference"`
	CollectedAmount   Amount `json:"collectedAmount"`
	CollectedCurrency string `json:"collectedCurrency"`
	Message           string `json:"message"`
	UpdatedAt         string `json:"updatedAt"`
	CreatedAt         string `json:"createdAt"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
