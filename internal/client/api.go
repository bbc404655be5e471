package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
)

// API is the client's HTTP surface onto the hub: the resync reads and the
// mutating actions (claim, eta, complete). Pushes notify; these calls are
// the authority.
type API struct {
	base string
	http *http.Client
}

func NewAPI(base string) *API {
	return &API{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Claim posts a claim attempt. A 409 is the lost-race outcome, not an
// error: the caller resyncs instead of retrying.
func (a *API) Claim(ctx context.Context, orderID, courierID int64) (core.ClaimOutcome, error) {
	status, body, err := a.post(ctx, fmt.Sprintf("/api/orders/%d/claim", orderID),
		dto.ClaimRequest{CourierID: courierID})
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return core.OutcomeClaimed, nil
	case http.StatusConflict:
		return core.OutcomeAlreadyTaken, nil
	default:
		return "", apiError(status, body)
	}
}

func (a *API) SetCompletionTime(ctx context.Context, orderID, courierID int64, minutes int) (models.Order, error) {
	status, body, err := a.post(ctx, fmt.Sprintf("/api/orders/%d/eta", orderID),
		dto.ETARequest{CourierID: courierID, Minutes: minutes})
	if err != nil {
		return models.Order{}, err
	}
	if status != http.StatusOK {
		return models.Order{}, apiError(status, body)
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (a *API) Complete(ctx context.Context, orderID, courierID int64) (models.Order, error) {
	status, body, err := a.post(ctx, fmt.Sprintf("/api/orders/%d/complete", orderID),
		dto.CompleteRequest{CourierID: courierID})
	if err != nil {
		return models.Order{}, err
	}
	if status != http.StatusOK {
		return models.Order{}, apiError(status, body)
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (a *API) Unclaimed(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := a.get(ctx, "/api/orders/unclaimed", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (a *API) ByCourier(ctx context.Context, courierID int64, status string) ([]models.Order, error) {
	path := fmt.Sprintf("/api/orders?courier_id=%d", courierID)
	if status != "" {
		path += "&status=" + status
	}
	var orders []models.Order
	if err := a.get(ctx, path, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (a *API) History(ctx context.Context, courierID int64) ([]models.DeliveryHistory, error) {
	var records []models.DeliveryHistory
	if err := a.get(ctx, fmt.Sprintf("/api/couriers/%d/history", courierID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *API) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (models.Order, error) {
	status, body, err := a.post(ctx, "/api/orders", req)
	if err != nil {
		return models.Order{}, err
	}
	if status != http.StatusCreated {
		return models.Order{}, apiError(status, body)
	}
	var order models.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (a *API) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}

func (a *API) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return apiError(resp.StatusCode, buf.Bytes())
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("hub returned %d: %s", status, payload.Error)
	}
	return fmt.Errorf("hub returned %d", status)
}
