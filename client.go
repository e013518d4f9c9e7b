package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const keepAliveInterval = 5 * time.Minute

type (
	HealthResponse struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
	}
)

// KeepAliveClient pings the bot's public URL so free hosting tiers do not
// put the process to sleep.
type KeepAliveClient struct {
	url        string
	httpClient *http.Client
}

func NewKeepAliveClient(url string) *KeepAliveClient {
	return &KeepAliveClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping requests the configured URL once.
func (c *KeepAliveClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", res.Status)
	}
	return nil
}

// Run pings every interval until ctx is done.
func (c *KeepAliveClient) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil {
				LogWarnf("Keep-alive ping to %s failed: %v", c.url, err)
			}
		}
	}
}

// healthHandler answers GET /healthz.
func healthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := sonic.Marshal(HealthResponse{
			Success: true,
			Status:  "ok",
			Uptime:  time.Since(started).Round(time.Second).String(),
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

// ServeHealth serves the health endpoint on addr until ctx is done.
func ServeHealth(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(time.Now()))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
