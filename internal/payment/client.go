package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the gateway's REST API, authenticating with the
// server key via basic auth.
type HTTPClient struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, serverKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		serverKey: serverKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount string `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"item_details"`
	CustomerDetails struct {
		ID string `json:"id"`
	} `json:"customer_details"`
	Expiry struct {
		Unit     string `json:"unit"`
		Duration int    `json:"duration"`
	} `json:"expiry"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type statusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// CentsToAmount renders integer cents as the gateway's decimal string.
func CentsToAmount(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func (c *HTTPClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var body sessionRequest
	body.TransactionDetails.OrderID = req.OrderRef
	body.TransactionDetails.GrossAmount = CentsToAmount(req.AmountCents)
	body.ItemDetails = append(body.ItemDetails, struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	}{Name: req.ItemName, Quantity: req.Quantity, Price: CentsToAmount(req.AmountCents / max(req.Quantity, 1))})
	body.CustomerDetails.ID = req.CustomerID
	body.Expiry.Unit = "minutes"
	body.Expiry.Duration = req.ExpiryMinutes

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway: create session returned status %d", resp.StatusCode)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gateway: decode session response: %w", err)
	}
	return &Session{Token: out.Token, RedirectURL: out.RedirectURL}, nil
}

func (c *HTTPClient) GetTransactionStatus(ctx context.Context, orderRef string) (*TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/"+orderRef+"/status", nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: status query returned status %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gateway: decode status response: %w", err)
	}
	return &TransactionStatus{
		OrderRef:          out.OrderID,
		TransactionStatus: out.TransactionStatus,
		FraudStatus:       out.FraudStatus,
		PaymentType:       out.PaymentType,
		TransactionID:     out.TransactionID,
	}, nil
}
