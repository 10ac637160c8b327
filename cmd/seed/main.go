package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type orderItemPayload struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type orderPayload struct {
	CustomerName string             `json:"customer_name"`
	OrderItems   []orderItemPayload `json:"order_items"`
}

func main() {
	gofakeit.Seed(time.Now().UnixNano())

	apiURL := env("API_URL", "http://localhost:8080")
	count := mustInt(env("SEED_COUNT", "10"))
	gapMs := mustInt(env("SEED_INTERVAL_MS", "0"))

	log.Printf("seeding %d order(s) against %s", count, apiURL)

	client := &http.Client{Timeout: 10 * time.Second}

	created := 0
	for i := 0; i < count; i++ {
		payload := fakeOrder()
		if err := postOrder(client, apiURL, payload); err != nil {
			log.Fatalf("seed order %d: %v", i+1, err)
		}
		created++

		if gapMs > 0 {
			time.Sleep(time.Duration(gapMs) * time.Millisecond)
		}
	}

	log.Printf("created %d order(s)", created)
}

func fakeOrder() orderPayload {
	items := make([]orderItemPayload, 0, gofakeit.Number(1, 5))
	for i := 0; i < cap(items); i++ {
		items = append(items, orderItemPayload{
			Price:    gofakeit.Price(1, 500),
			Quantity: gofakeit.Number(1, 10),
		})
	}

	return orderPayload{
		CustomerName: gofakeit.Name(),
		OrderItems:   items,
	}
}

func postOrder(client *http.Client, apiURL string, payload orderPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := client.Post(apiURL+"/api/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post order: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	log.Printf("created order for %s with %d item(s)", payload.CustomerName, len(payload.OrderItems))
	return nil
}

func env(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustInt(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("invalid integer %q: %v", raw, err)
	}
	return value
}
