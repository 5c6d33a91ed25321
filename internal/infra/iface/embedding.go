package iface

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

type embeddingAdapter struct {
	client *http.Client
}

func newEmbeddingAdapter(c *http.Client) *embeddingAdapter { return &embeddingAdapter{client: c} }

func (a *embeddingAdapter) Mode() domain.Mode { return domain.ModeEmbedding }

func (a *embeddingAdapter) Endpoints() map[string]struct{} {
	return map[string]struct{}{"v1/embeddings": {}}
}

func (a *embeddingAdapter) Validate(path string) bool {
	return matchesSuffix(path, "v1/embeddings")
}

func (a *embeddingAdapter) Health(ctx context.Context, port int, startedAt time.Time, deadline time.Time) error {
	url := baseURL(port)
	if err := pollUntilReady(ctx, deadline, func() error { return probeLiveness(a.client, url) }); err != nil {
		return err
	}
	return pollUntilReady(ctx, deadline, func() error { return probeEmbedding(ctx, a.client, url) })
}

func probeEmbedding(ctx context.Context, client *http.Client, url string) error {
	body := []byte(`{"input":"hi"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/v1/embeddings", bytes.NewReader(body))
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
		return fmt.Errorf("embedding probe returned %d", resp.StatusCode)
	}
	return nil
}
