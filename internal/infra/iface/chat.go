package iface

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

type chatAdapter struct {
	client *http.Client
}

func newChatAdapter(c *http.Client) *chatAdapter { return &chatAdapter{client: c} }

func (a *chatAdapter) Mode() domain.Mode { return domain.ModeChat }

func (a *chatAdapter) Endpoints() map[string]struct{} {
	return map[string]struct{}{"v1/chat/completions": {}}
}

func (a *chatAdapter) Validate(path string) bool {
	return matchesSuffix(path, "v1/chat/completions")
}

// Health probes liveness (GET /health) then, once live, issues one
// minimal chat completion as the functional check, matching the
// teacher's health-then-functional polling shape in engine/subprocess.go.
func (a *chatAdapter) Health(ctx context.Context, port int, startedAt time.Time, deadline time.Time) error {
	url := baseURL(port)
	if err := pollUntilReady(ctx, deadline, func() error { return probeLiveness(a.client, url) }); err != nil {
		return err
	}
	return pollUntilReady(ctx, deadline, func() error { return probeChat(ctx, a.client, url) })
}

func probeLiveness(client *http.Client, url string) error {
	resp, err := client.Get(url + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func probeChat(ctx context.Context, client *http.Client, url string) error {
	body := []byte(`{"messages":[{"role":"user","content":"hi"}],"max_tokens":1,"stream":false}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("chat probe returned %d", resp.StatusCode)
	}
	return nil
}

func matchesSuffix(path, suffix string) bool {
	if len(path) < len(suffix) {
		return false
	}
	trimmed := path
	for len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	return trimmed == suffix
}
