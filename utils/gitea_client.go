package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrGiteaNotConfigured is returned when GITEA_URL or GITEA_TOKEN is missing
var ErrGiteaNotConfigured = errors.New("gitea is not configured")

// GiteaClient calls the Gitea REST API with a personal access token
type GiteaClient struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewGiteaClient(baseURL, token string) *GiteaClient {
	return &GiteaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 8 * time.Second},
	}
}

func (g *GiteaClient) Configured() bool {
	return g != nil && g.BaseURL != "" && g.Token != ""
}

// CreateDeployKey registers a read only deploy key on the repository. A key
// that already exists (409 or 422) counts as attached.
func (g *GiteaClient) CreateDeployKey(ctx context.Context, repoURL, title, publicKey string) error {
	if !g.Configured() {
		return ErrGiteaNotConfigured
	}
	owner, repo, err := ParseRepoOwnerName(repoURL)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"title":     title,
		"key":       strings.TrimSpace(publicKey),
		"read_only": true,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/keys", g.BaseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+g.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gitea request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict, http.StatusUnprocessableEntity:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gitea API error %d: %s", resp.StatusCode, TruncateString(string(body), 200))
	}
}
