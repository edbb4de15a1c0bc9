// Package farecardclient talks to the fare card HTTP API.
package farecardclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonanatree/farecard/farecard/models"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	Base string
	HTTP *http.Client
}

func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

func (c *Client) IssueCard(ctx context.Context, req models.CreateCard) (models.CardView, error) {
	var card models.CardView
	err := c.do(ctx, http.MethodPost, "/cards", req, &card)
	return card, err
}

func (c *Client) GetCard(ctx context.Context, cardID string) (models.CardView, error) {
	var card models.CardView
	err := c.do(ctx, http.MethodGet, "/cards/"+cardID, nil, &card)
	return card, err
}

func (c *Client) EnableCard(ctx context.Context, cardID string) (models.CardView, error) {
	var card models.CardView
	err := c.do(ctx, http.MethodPost, "/cards/"+cardID+"/enable", nil, &card)
	return card, err
}

func (c *Client) DisableCard(ctx context.Context, cardID string) (models.CardView, error) {
	var card models.CardView
	err := c.do(ctx, http.MethodPost, "/cards/"+cardID+"/disable", nil, &card)
	return card, err
}

func (c *Client) PerformRide(ctx context.Context, cardID string, distance float64) (models.Transaction, error) {
	var txn models.Transaction
	err := c.do(ctx, http.MethodPost, "/cards/"+cardID+"/rides", models.RideRequest{Distance: distance}, &txn)
	return txn, err
}

func (c *Client) MakePayment(ctx context.Context, cardID string, amount int64, distance float64) (models.Transaction, error) {
	var txn models.Transaction
	err := c.do(ctx, http.MethodPost, "/cards/"+cardID+"/payments", models.PaymentRequest{Amount: amount, Distance: distance}, &txn)
	return txn, err
}

func (c *Client) TopUp(ctx context.Context, cardID string, amount int64) (models.Transaction, error) {
	var txn models.Transaction
	err := c.do(ctx, http.MethodPost, "/cards/"+cardID+"/topups", models.TopUpRequest{Amount: amount}, &txn)
	return txn, err
}

func (c *Client) ListTransactions(ctx context.Context, cardID string) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := c.do(ctx, http.MethodGet, "/cards/"+cardID+"/transactions", nil, &transactions)
	return transactions, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
