package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	userID      int64
)

// Metrics
var (
	totalRequests uint64
	created       uint64
	updated       uint64
	deleted       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "create", "Workload type: create | mixed")
	flag.Int64Var(&userID, "user", 1, "User id sent in X-User-ID")
}

type account struct {
	ID             int64           `json:"id"`
	Balance        decimal.Decimal `json:"balance"`
	BalanceInitial decimal.Decimal `json:"balance_initial"`
}

type transaction struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

var client = &http.Client{Timeout: 5 * time.Second}

func call(method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, targetURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	req.Header.Set("X-User-Permissions", "*")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	var acc account
	code, err := call("POST", "/api/v1/accounts", map[string]any{
		"label": "Benchmark", "currency": "EUR", "balance_initial": "1000",
	}, &acc)
	if err != nil || code != http.StatusCreated {
		log.Fatalf("Unable to create the benchmark account: status %d, %v", code, err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, acc.ID)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ok := checkBalance(acc.ID)
	printResults(elapsed, ok)
	if !ok {
		os.Exit(1)
	}
}

func worker(wg *sync.WaitGroup, start time.Time, accountID int64) {
	defer wg.Done()
	path := fmt.Sprintf("/api/v1/accounts/%d/transactions", accountID)

	for time.Since(start) < duration {
		amount := decimal.New(int64(rand.Intn(20000)-10000), -2)
		var tx transaction
		code, err := call("POST", path, map[string]any{
			"label": "bench", "date": time.Now().Format("2006-01-02"), "amount": amount,
		}, &tx)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil || code != http.StatusCreated {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		atomic.AddUint64(&created, 1)

		if workload != "mixed" {
			continue
		}
		// Flip some rows inactive and delete others to exercise every
		// balance path.
		txPath := fmt.Sprintf("/api/v1/transactions/%d", tx.ID)
		switch rand.Intn(3) {
		case 0:
			code, err = call("PUT", txPath, map[string]any{
				"label": "bench", "date": time.Now().Format("2006-01-02"), "amount": amount, "status": "inactive",
			}, nil)
			atomic.AddUint64(&totalRequests, 1)
			if err == nil && code == http.StatusOK {
				atomic.AddUint64(&updated, 1)
			} else {
				atomic.AddUint64(&failOther, 1)
			}
		case 1:
			code, err = call("DELETE", txPath, nil, nil)
			atomic.AddUint64(&totalRequests, 1)
			if err == nil && code == http.StatusNoContent {
				atomic.AddUint64(&deleted, 1)
			} else {
				atomic.AddUint64(&failOther, 1)
			}
		}
	}
}

// checkBalance verifies balance == balance_initial + sum of counted rows.
func checkBalance(accountID int64) bool {
	var acc account
	if _, err := call("GET", fmt.Sprintf("/api/v1/accounts/%d", accountID), nil, &acc); err != nil {
		log.Printf("Reading the account failed: %v", err)
		return false
	}

	sum := decimal.Zero
	for page := 1; ; page++ {
		var res struct {
			Rows  []transaction `json:"rows"`
			Pages int           `json:"pages"`
		}
		if _, err := call("GET", fmt.Sprintf("/api/v1/accounts/%d/transactions?page=%d", accountID, page), nil, &res); err != nil {
			log.Printf("Listing transactions failed: %v", err)
			return false
		}
		for _, t := range res.Rows {
			if t.Status != "inactive" {
				sum = sum.Add(t.Amount)
			}
		}
		if page >= res.Pages {
			break
		}
	}

	want := acc.BalanceInitial.Add(sum)
	if !acc.Balance.Equal(want) {
		log.Printf("Balance invariant violated: balance %s, expected %s", acc.Balance, want)
		return false
	}
	log.Printf("Balance invariant holds: %s", acc.Balance)
	return true
}

func printResults(d time.Duration, invariant bool) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": float64(total) / d.Seconds(),
		"created":        atomic.LoadUint64(&created),
		"updated":        atomic.LoadUint64(&updated),
		"deleted":        atomic.LoadUint64(&deleted),
		"errors":         atomic.LoadUint64(&failOther),
		"invariant_ok":   invariant,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Unable to save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
