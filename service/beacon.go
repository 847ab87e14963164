package service

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultBeaconTimeout = 3 * time.Second

// Beacon delivers small POST payloads that must outlive the code that queued
// them, such as seat releases sent while the console is shutting down.
// Delivery is not guaranteed: Send only reports whether the payload was
// accepted for transmission.
type Beacon struct {
	httpClient *http.Client
	sessionID  string
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewBeacon creates a beacon sharing httpClient's transport. Each payload
// gets its own detached deadline of timeout.
func NewBeacon(httpClient *http.Client, sessionID string, timeout time.Duration, logger *slog.Logger) *Beacon {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultBeaconTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Beacon{
		httpClient: httpClient,
		sessionID:  sessionID,
		timeout:    timeout,
		logger:     logger,
	}
}

// Send queues body for delivery to endpoint and returns immediately.
// It returns false when the beacon has been flushed or the input is empty.
func (b *Beacon) Send(endpoint string, body []byte) bool {
	if b == nil || endpoint == "" || len(body) == 0 {
		return false
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.inFlight.Add(1)
	b.mu.Unlock()

	payload := append([]byte(nil), body...)
	go func() {
		defer b.inFlight.Done()
		b.deliver(endpoint, payload)
	}()
	return true
}

func (b *Beacon) deliver(endpoint string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		b.logger.Warn("beacon request", "endpoint", endpoint, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set(headerSessionID, b.sessionID)

	res, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Warn("beacon delivery failed", "endpoint", endpoint, "error", err)
		return
	}
	_ = res.Body.Close()
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		b.logger.Warn("beacon rejected", "endpoint", endpoint, "status", res.StatusCode)
		return
	}
	b.logger.Debug("beacon delivered", "endpoint", endpoint)
}

// Flush stops accepting payloads and waits up to timeout for queued ones.
// It reports whether every payload finished before the deadline.
func (b *Beacon) Flush(timeout time.Duration) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
