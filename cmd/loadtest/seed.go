package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// fixture — клиент и товар, на которых строятся заказы нагрузочного теста.
type fixture struct {
	customerID string
	productID  string
}

type createdResource struct {
	ID string `json:"id"`
}

// seedFixture создаёт через REST API категорию, товар с запасом stock и клиента.
func seedFixture(ctx context.Context, client *http.Client, baseURL, runID string, stock int32, price string) (fixture, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	category, err := postJSON(ctx, client, baseURL+"/api/categories", map[string]any{
		"name": "loadtest-" + runID,
	})
	if err != nil {
		return fixture{}, fmt.Errorf("seed category: %w", err)
	}

	product, err := postJSON(ctx, client, baseURL+"/api/products", map[string]any{
		"category_id":            category.ID,
		"product_name":           "loadtest-" + runID,
		"price":                  price,
		"wholesale_price":        price,
		"minimum_order_quantity": 1,
		"stock_quantity":         stock,
	})
	if err != nil {
		return fixture{}, fmt.Errorf("seed product: %w", err)
	}

	customer, err := postJSON(ctx, client, baseURL+"/api/business_users", map[string]any{
		"company_name":   "Loadtest " + runID,
		"contact_person": "loadtest",
		"email":          "loadtest-" + runID + "@example.com",
		"phone":          fmt.Sprintf("+1%010d", time.Now().UnixNano()%1e10),
		"address":        "loadtest",
		"referral_code":  "leafcoin",
	})
	if err != nil {
		return fixture{}, fmt.Errorf("seed customer: %w", err)
	}

	return fixture{customerID: customer.ID, productID: product.ID}, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) (createdResource, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return createdResource{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return createdResource{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return createdResource{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return createdResource{}, fmt.Errorf("POST %s: status %d: %s %s", url, resp.StatusCode, apiErr.Error, apiErr.Message)
	}

	var created createdResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return createdResource{}, fmt.Errorf("decode %s response: %w", url, err)
	}
	if created.ID == "" {
		return createdResource{}, fmt.Errorf("POST %s: response without id", url)
	}
	return created, nil
}
