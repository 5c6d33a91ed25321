package iface

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

type baseAdapter struct {
	client *http.Client
}

func newBaseAdapter(c *http.Client) *baseAdapter { return &baseAdapter{client: c} }

func (a *baseAdapter) Mode() domain.Mode { return domain.ModeBase }

func (a *baseAdapter) Endpoints() map[string]struct{} {
	return map[string]struct{}{"v1/completions": {}}
}

func (a *baseAdapter) Validate(path string) bool {
	return matchesSuffix(path, "v1/completions")
}

func (a *baseAdapter) Health(ctx context.Context, port int, startedAt time.Time, deadline time.Time) error {
	url := baseURL(port)
	if err := pollUntilReady(ctx, deadline, func() error { return probeLiveness(a.client, url) }); err != nil {
		return err
	}
	return pollUntilReady(ctx, deadline, func() error { return probeCompletion(ctx, a.client, url) })
}

func probeCompletion(ctx context.Context, client *http.Client, url string) error {
	body := []byte(`{"prompt":"hi","max_tokens":1,"stream":false}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/v1/completions", bytes.NewReader(body))
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
		return fmt.Errorf("completion probe returned %d", resp.StatusCode)
	}
	return nil
}
