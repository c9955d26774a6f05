package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func (c *client) call(ctx context.Context, method, path string, body, out any, want int) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func main() {
	addr := os.Getenv("MONETA_API_URL")
	if addr == "" {
		addr = "http://localhost:8080"
	}
	c := &client{http: &http.Client{Timeout: 10 * time.Second}, baseURL: addr}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString())
	creds := map[string]any{"email": email, "password": "smoke-password"}
	c.call(ctx, http.MethodPost, "/v1/auth/register", creds, nil, http.StatusCreated)

	var login struct {
		Token string `json:"token"`
	}
	c.call(ctx, http.MethodPost, "/v1/auth/login", creds, &login, http.StatusOK)
	first := login.Token
	c.call(ctx, http.MethodPost, "/v1/auth/login", creds, &login, http.StatusOK)

	// the first session must be gone
	c.token = first
	c.call(ctx, http.MethodGet, "/v1/me", nil, nil, http.StatusUnauthorized)
	c.token = login.Token

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var budget struct {
		ID int64 `json:"id"`
	}
	c.call(ctx, http.MethodPost, "/v1/budgets", map[string]any{
		"name": "smoke", "category": "smoke", "limit": 1000,
		"period_start": start, "period_end": start.AddDate(0, 1, 0),
	}, &budget, http.StatusCreated)
	c.call(ctx, http.MethodPost, "/v1/transactions", map[string]any{
		"kind": "EXPENSE", "amount": 1200, "category": "smoke", "occurred_at": now,
	}, nil, http.StatusCreated)

	var status struct {
		Spent int64  `json:"spent"`
		State string `json:"state"`
	}
	c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/budgets/%d/status", budget.ID), nil, &status, http.StatusOK)
	if status.Spent != 1200 || status.State != "EXCEEDED" {
		log.Fatalf("unexpected budget status: %+v", status)
	}

	var notes struct {
		Total int `json:"total"`
	}
	c.call(ctx, http.MethodGet, "/v1/notifications", nil, &notes, http.StatusOK)
	if notes.Total != 1 {
		log.Fatalf("expected one notification, got %d", notes.Total)
	}

	c.call(ctx, http.MethodPost, "/v1/auth/logout", nil, nil, http.StatusNoContent)
	fmt.Printf("✅ moneta smoke test passed: user=%s budget=%d\n", email, budget.ID)
}
