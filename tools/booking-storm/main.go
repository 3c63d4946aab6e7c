// booking-storm fires N concurrent requests for the same slot at a running
// booking service and reports how many won. Exactly one 201 and N-1 409s is
// the expected outcome.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/servihub/servihub/libs/auth"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		providerID = flag.String("provider-id", getenv("PROVIDER_ID", ""), "provider to storm")
		date       = flag.String("date", getenv("BOOKING_DATE", ""), "date YYYY-MM-DD")
		start      = flag.String("start", getenv("BOOKING_START", "10:00"), "start HH:MM")
		end        = flag.String("end", getenv("BOOKING_END", "11:00"), "end HH:MM")
		secret     = flag.String("secret", getenv("JWT_HS256_SECRET", ""), "shared signing secret")
		workers    = flag.Int("n", 16, "concurrent requests")
	)
	flag.Parse()

	if strings.TrimSpace(*providerID) == "" {
		fatal("PROVIDER_ID is required")
	}
	if strings.TrimSpace(*secret) == "" {
		fatal("JWT_HS256_SECRET is required")
	}
	if strings.TrimSpace(*date) == "" {
		fatal("BOOKING_DATE is required")
	}

	url := strings.TrimRight(*baseURL, "/") + "/api/v1/bookings"
	client := &http.Client{Timeout: 10 * time.Second}

	counts := make(map[int]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := fire(client, url, *secret, *providerID, *date, *start, *end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				counts[-1]++
				return
			}
			counts[status]++
		}()
	}
	wg.Wait()

	fmt.Printf("workers=%d created=%d conflict=%d other=%d\n",
		*workers, counts[http.StatusCreated], counts[http.StatusConflict],
		*workers-counts[http.StatusCreated]-counts[http.StatusConflict])
}

func fire(client *http.Client, url, secret, providerID, date, start, end string) (int, error) {
	now := time.Now().Unix()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  uuid.NewString(),
		Role: auth.RoleCustomer,
		Iat:  now,
		Exp:  now + 300,
	}, secret)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]string{
		"provider_id": providerID,
		"date":        date,
		"start_time":  start,
		"end_time":    end,
		"address":     "storm test",
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
