// Command paywatch follows a booking's payment until it is confirmed,
// fails or times out. Exit codes: 0 confirmed, 1 failed, 2 timed out,
// 3 usage or interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"seatpay/internal/domain"
	"seatpay/internal/logger"
	"seatpay/internal/poller"
)

const (
	exitSuccess = 0
	exitFailed  = 1
	exitTimeout = 2
	exitUsage   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	def := poller.DefaultConfig()

	apiURL := flag.String("api", envOr("SEATPAY_API", "http://localhost:8080"), "seatpay base URL")
	bookingID := flag.String("booking", "", "booking id to watch")
	token := flag.String("token", os.Getenv("SEATPAY_TOKEN"), "bearer token of the booking owner")
	interval := flag.Duration("interval", def.BaseInterval, "initial poll interval")
	maxInterval := flag.Duration("max-interval", def.MaxInterval, "poll interval cap")
	timeout := flag.Duration("timeout", def.MaxDuration, "give up after this long")
	logLevel := flag.String("log-level", "WARN", "log level")
	flag.Parse()

	logger.Init(*logLevel, "text")
	log := logger.Get()

	if *bookingID == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "paywatch: -booking and -token are required")
		flag.Usage()
		return exitUsage
	}

	src := &statusSource{
		endpoint: strings.TrimRight(*apiURL, "/") + "/v1/bookings/" + url.PathEscape(*bookingID) + "/payment",
		token:    *token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	result := make(chan int, 1)
	p := poller.New(src.Fetch, poller.Config{
		BaseInterval:  *interval,
		MaxInterval:   *maxInterval,
		BackoffFactor: def.BackoffFactor,
		BackoffEvery:  def.BackoffEvery,
		MaxDuration:   *timeout,
	}, poller.Callbacks{
		OnSuccess: func(s *domain.PaymentSnapshot) {
			fmt.Printf("confirmed: booking %s, payment %s (%d %s)\n", s.BookingID, s.PaymentID, s.Amount, s.Currency)
			result <- exitSuccess
		},
		OnFailure: func(s *domain.PaymentSnapshot) {
			fmt.Printf("failed: booking %s is %s, payment %s is %s\n", s.BookingID, s.BookingStatus, s.PaymentID, s.PaymentStatus)
			result <- exitFailed
		},
		OnTimeout: func() {
			fmt.Printf("timed out after %s waiting for booking %s\n", *timeout, *bookingID)
			result <- exitTimeout
		},
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "paywatch:", err)
		return exitUsage
	}

	select {
	case code := <-result:
		return code
	case <-ctx.Done():
		p.Stop()
		fmt.Fprintln(os.Stderr, "paywatch: interrupted")
		return exitUsage
	}
}

type statusSource struct {
	endpoint string
	token    string
	client   *http.Client
}

// Fetch reads the booking's payment snapshot from the API.
func (s *statusSource) Fetch(ctx context.Context) (*domain.PaymentSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snapshot domain.PaymentSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
