package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tutu-network/tutu/internal/daemon"
)

// apiClient is a small HTTP client bound to a local (or remote) FleetGate
// daemon, used by every subcommand that talks to an already-running server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient resolves the daemon address from $FLEETGATE_HOST (e.g.
// "http://127.0.0.1:11535"), falling back to the default config's host:port.
func newAPIClient() *apiClient {
	base := os.Getenv("FLEETGATE_HOST")
	if base == "" {
		cfg := daemon.DefaultConfig()
		base = fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)
	}
	return &apiClient{baseURL: base, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to fleetgate at %s: %w (is the daemon running? try `fleetgate serve`)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("fleetgate returned %s: %s", resp.Status, string(data))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
