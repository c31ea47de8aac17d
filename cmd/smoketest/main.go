// Command smoketest drives one payment through the full flow against a
// running API server: initiate, then poll check-status on the same
// schedule the web frontend uses (every 5 seconds, giving up after 65),
// reporting the pending table and ledger balance along the way.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	targetURL    string
	phoneNumber  string
	customerName string
	amount       string
	pollInterval time.Duration
	pollDeadline time.Duration
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:3002", "API base URL")
	flag.StringVar(&phoneNumber, "phone", "0712345678", "Phone number to pay from and credit")
	flag.StringVar(&customerName, "name", "Test User", "Customer name")
	flag.StringVar(&amount, "amount", "100", "Payment amount")
	flag.DurationVar(&pollInterval, "interval", 5*time.Second, "Status poll interval")
	flag.DurationVar(&pollDeadline, "deadline", 65*time.Second, "Overall polling deadline")
}

func main() {
	flag.Parse()
	client := &http.Client{Timeout: 15 * time.Second}

	externalRef := "SMOKE_" + uuid.New().String()
	log.Printf("Initiating payment: phone=%s amount=%s ref=%s", phoneNumber, amount, externalRef)

	ensureAccount(client)
	printBalance(client, "before")
	printPending(client, "before initiation")

	reference, err := initiate(client, externalRef)
	if err != nil {
		log.Fatalf("Initiation failed: %v", err)
	}
	log.Printf("Gateway reference: %s", reference)

	printPending(client, "after initiation")

	status, err := poll(client, reference)
	if err != nil {
		log.Fatalf("Polling failed: %v", err)
	}
	log.Printf("Final status: %s", status)

	printPending(client, "after settlement")
	printBalance(client, "after")

	if status != "SUCCESS" {
		os.Exit(1)
	}
}

func initiate(client *http.Client, externalRef string) (string, error) {
	payload := map[string]any{
		"customer_name":      customerName,
		"phone_number":       phoneNumber,
		"amount":             json.Number(amount),
		"external_reference": externalRef,
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/api/process-payment", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		Reference string `json:"reference"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Message)
	}
	if parsed.Reference == "" {
		return "", fmt.Errorf("gateway response carried no reference")
	}
	return parsed.Reference, nil
}

func poll(client *http.Client, reference string) (string, error) {
	deadline := time.Now().Add(pollDeadline)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		statusURL := fmt.Sprintf("%s/api/check-status?reference=%s&phone_number=%s",
			targetURL, url.QueryEscape(reference), url.QueryEscape(phoneNumber))

		resp, err := client.Get(statusURL)
		if err != nil {
			return "", err
		}
		var parsed struct {
			Status string `json:"status"`
		}
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return "", err
		}
		log.Printf("Status: %s", parsed.Status)

		switch parsed.Status {
		case "SUCCESS", "FAILED", "CANCELLED":
			return parsed.Status, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("payment still %s after %s", parsed.Status, pollDeadline)
		}
		<-ticker.C
	}
}

func ensureAccount(client *http.Client) {
	resp, err := client.Get(targetURL + "/api/balance?phone_number=" + url.QueryEscape(phoneNumber))
	if err != nil {
		log.Printf("Account check failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		return
	}

	body, _ := json.Marshal(map[string]string{"phone_number": phoneNumber})
	resp, err = client.Post(targetURL+"/api/accounts", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Account creation failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Account creation failed: status %d", resp.StatusCode)
	}
	log.Printf("Created account for %s", phoneNumber)
}

func printPending(client *http.Client, label string) {
	resp, err := client.Get(targetURL + "/api/debug/payments")
	if err != nil {
		log.Printf("Pending lookup failed (%s): %v", label, err)
		return
	}
	defer resp.Body.Close()

	var parsed struct {
		TotalPayments int `json:"total_payments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("Pending decode failed (%s): %v", label, err)
		return
	}
	log.Printf("Pending payments (%s): %d", label, parsed.TotalPayments)
}

func printBalance(client *http.Client, label string) {
	resp, err := client.Get(targetURL + "/api/balance?phone_number=" + url.QueryEscape(phoneNumber))
	if err != nil {
		log.Printf("Balance lookup failed (%s): %v", label, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Balance (%s): unavailable (status %d)", label, resp.StatusCode)
		return
	}
	var parsed struct {
		Balance string `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("Balance decode failed (%s): %v", label, err)
		return
	}
	log.Printf("Balance (%s): %s", label, parsed.Balance)
}
