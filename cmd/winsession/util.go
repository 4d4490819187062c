package main

import (
	"net/http"
	"time"

	"github.com/loykin/winsession/internal/server"
	"github.com/loykin/winsession/pkg/client"
)

func newServer(addr string, h http.Handler) *http.Server {
	return server.NewServer(addr, h)
}

func saveTimeout(f ServeFlags) time.Duration {
	if f.SaveTimeout <= 0 {
		return 5 * time.Second
	}
	return f.SaveTimeout
}

func newAPIClient(f APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	return client.New(cfg)
}
