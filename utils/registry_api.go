package utils

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRegistryNotFound is returned for unknown repositories, tags and manifests
	ErrRegistryNotFound = errors.New("not found in registry")
	// ErrDeleteNotAllowed is returned when the registry answers a delete with 405
	ErrDeleteNotAllowed = errors.New("registry configuration does not permit deletion (405 Method Not Allowed)")
)

// manifestAccept covers single manifests and indexes so HEAD returns the tag's own digest
var manifestAccept = strings.Join([]string{
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
	"application/vnd.oci.image.manifest.v1+json",
	"application/vnd.oci.image.index.v1+json",
}, ", ")

// RegistryStatusError is an unexpected status from the registry API
type RegistryStatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *RegistryStatusError) Error() string {
	return fmt.Sprintf("registry %s failed: status %d: %s", e.Operation, e.StatusCode, TruncateString(e.Body, 200))
}

// RegistryAPI talks to a Docker registry v2 HTTP API with optional basic auth
type RegistryAPI struct {
	BaseURL  string
	Username string
	Password string
	client   *http.Client
}

// NewRegistryAPI creates a client for the registry at registryURL. URLs without
// a scheme are treated as https; certificates are not verified since most
// in-cluster registries are self-signed.
func NewRegistryAPI(registryURL, username, password string) *RegistryAPI {
	return &RegistryAPI{
		BaseURL:  RegistryBaseURL(registryURL),
		Username: username,
		Password: password,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
}

func (api *RegistryAPI) do(ctx context.Context, method, path string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, api.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if api.Username != "" && api.Password != "" {
		req.SetBasicAuth(api.Username, api.Password)
	}
	return api.client.Do(req)
}

func (api *RegistryAPI) getJSON(ctx context.Context, operation, path string, out any) error {
	resp, err := api.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRegistryNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RegistryStatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ping checks /v2/. A 200 or 401 means a registry is answering.
func (api *RegistryAPI) Ping(ctx context.Context) (int, error) {
	resp, err := api.do(ctx, http.MethodGet, "/v2/", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Catalog returns all repositories of the registry
func (api *RegistryAPI) Catalog(ctx context.Context) ([]string, error) {
	var body struct {
		Repositories []string `json:"repositories"`
	}
	if err := api.getJSON(ctx, "catalog", "/v2/_catalog", &body); err != nil {
		return nil, err
	}
	if body.Repositories == nil {
		body.Repositories = []string{}
	}
	return body.Repositories, nil
}

// Tags returns the tags of one repository
func (api *RegistryAPI) Tags(ctx context.Context, repository string) ([]string, error) {
	var body struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := api.getJSON(ctx, "tags", fmt.Sprintf("/v2/%s/tags/list", repository), &body); err != nil {
		return nil, err
	}
	if body.Tags == nil {
		body.Tags = []string{}
	}
	return body.Tags, nil
}

// ResolveDigest returns the manifest digest a tag points to, trying HEAD
// first and GET for registries that do not answer HEAD
func (api *RegistryAPI) ResolveDigest(ctx context.Context, repository, tag string) (string, error) {
	path := fmt.Sprintf("/v2/%s/manifests/%s", repository, tag)
	header := http.Header{"Accept": []string{manifestAccept}}

	var lastErr error
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		resp, err := api.do(ctx, method, path, header)
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = ErrRegistryNotFound
			continue
		}
		digest := resp.Header.Get("Docker-Content-Digest")
		if digest == "" {
			return "", fmt.Errorf("no digest header found for %s:%s", repository, tag)
		}
		return digest, nil
	}
	return "", lastErr
}

// DeleteManifest removes a manifest by digest. Only 202 counts as deleted.
func (api *RegistryAPI) DeleteManifest(ctx context.Context, repository, digest string) error {
	resp, err := api.do(ctx, http.MethodDelete, fmt.Sprintf("/v2/%s/manifests/%s", repository, digest), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusMethodNotAllowed:
		return ErrDeleteNotAllowed
	case http.StatusNotFound:
		return ErrRegistryNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RegistryStatusError{Operation: "delete", StatusCode: resp.StatusCode, Body: string(body)}
	}
}
