package iface

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

type rerankerAdapter struct {
	client *http.Client
}

func newRerankerAdapter(c *http.Client) *rerankerAdapter { return &rerankerAdapter{client: c} }

func (a *rerankerAdapter) Mode() domain.Mode { return domain.ModeReranker }

func (a *rerankerAdapter) Endpoints() map[string]struct{} {
	return map[string]struct{}{"v1/rerank": {}}
}

func (a *rerankerAdapter) Validate(path string) bool {
	return matchesSuffix(path, "v1/rerank")
}

func (a *rerankerAdapter) Health(ctx context.Context, port int, startedAt time.Time, deadline time.Time) error {
	url := baseURL(port)
	if err := pollUntilReady(ctx, deadline, func() error { return probeLiveness(a.client, url) }); err != nil {
		return err
	}
	return pollUntilReady(ctx, deadline, func() error { return probeRerank(ctx, a.client, url) })
}

func probeRerank(ctx context.Context, client *http.Client, url string) error {
	body := []byte(`{"query":"hi","documents":["a","b"]}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/v1/rerank", bytes.NewReader(body))
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
		return fmt.Errorf("rerank probe returned %d", resp.StatusCode)
	}
	return nil
}
