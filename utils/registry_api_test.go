package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "sha256:0000000000000000000000000000000000000000000000000000000000000001"

func newRegistryServer(t *testing.T, deleteStatus int, headAllowed bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bob" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/v2/":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/v2/_catalog":
			_, _ = w.Write([]byte(`{"repositories":["hydrosim/s001","hydrosim/s002"]}`))
		case r.URL.Path == "/v2/hydrosim/s001/tags/list":
			_, _ = w.Write([]byte(`{"name":"hydrosim/s001","tags":["abc1234","main-latest"]}`))
		case r.URL.Path == "/v2/hydrosim/s001/manifests/abc1234":
			if r.Method == http.MethodHead && !headAllowed {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			assert.Contains(t, r.Header.Get("Accept"), "application/vnd.oci.image.index.v1+json")
			w.Header().Set("Docker-Content-Digest", testDigest)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/v2/hydrosim/s001/manifests/"+testDigest && r.Method == http.MethodDelete:
			w.WriteHeader(deleteStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryAPICatalogAndTags(t *testing.T) {
	srv := newRegistryServer(t, http.StatusAccepted, true)
	api := NewRegistryAPI(srv.URL, "bob", "pw")
	ctx := context.Background()

	repos, err := api.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hydrosim/s001", "hydrosim/s002"}, repos)

	tags, err := api.Tags(ctx, "hydrosim/s001")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc1234", "main-latest"}, tags)

	_, err = api.Tags(ctx, "hydrosim/missing")
	assert.ErrorIs(t, err, ErrRegistryNotFound)
}

func TestRegistryAPIPing(t *testing.T) {
	srv := newRegistryServer(t, http.StatusAccepted, true)

	status, err := NewRegistryAPI(srv.URL, "bob", "pw").Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = NewRegistryAPI(srv.URL, "", "").Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)

	_, err = NewRegistryAPI("http://127.0.0.1:1", "", "").Ping(context.Background())
	assert.Error(t, err)
}

func TestRegistryAPIDeleteTag(t *testing.T) {
	ctx := context.Background()

	t.Run("head digest then delete", func(t *testing.T) {
		api := NewRegistryAPI(newRegistryServer(t, http.StatusAccepted, true).URL, "bob", "pw")
		digest, err := api.ResolveDigest(ctx, "hydrosim/s001", "abc1234")
		require.NoError(t, err)
		assert.Equal(t, testDigest, digest)
		assert.NoError(t, api.DeleteManifest(ctx, "hydrosim/s001", digest))
	})

	t.Run("falls back to GET", func(t *testing.T) {
		api := NewRegistryAPI(newRegistryServer(t, http.StatusAccepted, false).URL, "bob", "pw")
		digest, err := api.ResolveDigest(ctx, "hydrosim/s001", "abc1234")
		require.NoError(t, err)
		assert.Equal(t, testDigest, digest)
	})

	t.Run("unknown tag", func(t *testing.T) {
		api := NewRegistryAPI(newRegistryServer(t, http.StatusAccepted, true).URL, "bob", "pw")
		_, err := api.ResolveDigest(ctx, "hydrosim/s001", "nope")
		assert.ErrorIs(t, err, ErrRegistryNotFound)
	})

	t.Run("deletion disabled", func(t *testing.T) {
		api := NewRegistryAPI(newRegistryServer(t, http.StatusMethodNotAllowed, true).URL, "bob", "pw")
		assert.ErrorIs(t, api.DeleteManifest(ctx, "hydrosim/s001", testDigest), ErrDeleteNotAllowed)
	})

	t.Run("unexpected status", func(t *testing.T) {
		api := NewRegistryAPI(newRegistryServer(t, http.StatusInternalServerError, true).URL, "bob", "pw")
		err := api.DeleteManifest(ctx, "hydrosim/s001", testDigest)
		var statusErr *RegistryStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	})
}

func TestRegistryURLHelpers(t *testing.T) {
	assert.Equal(t, "reg.example.com:5000", CleanRegistryURL("https://reg.example.com:5000/"))
	assert.Equal(t, "reg.example.com", CleanRegistryURL("http://reg.example.com/v2"))
	assert.Equal(t, "reg.example.com", CleanRegistryURL("reg.example.com/"))

	assert.Equal(t, "https://reg.example.com", RegistryBaseURL("reg.example.com/"))
	assert.Equal(t, "http://reg:5000", RegistryBaseURL("http://reg:5000"))
	assert.True(t, IsInsecureRegistry("http://reg:5000"))
	assert.False(t, IsInsecureRegistry("reg:5000"))

	assert.Equal(t, "reg.example.com/hydrosim/s001", RenderImageRepo("{{registry}}/hydrosim/{{student_code}}", "reg.example.com", "s001"))
	assert.Equal(t, "", RenderImageRepo("{{registry}}/hydrosim/{{student_code}}", "", "s001"))
	assert.Equal(t, "hub/s001", RenderImageRepo("hub/{{student_code}}", "", "s001"))
	assert.Equal(t, "", RenderImageRepo("", "reg", "s001"))
	assert.Equal(t, "reg/hydrosim/s001", RenderImageRepo("{{registry}}/hydrosim/{{student_code}}", "reg", "S001"))
}

func TestResolveImageTag(t *testing.T) {
	assert.Equal(t, "main-latest", ResolveImageTag("branch_latest", "0123456789", "main"))
	assert.Equal(t, "feature-login-latest", ResolveImageTag("branch_latest", "", "feature/login"))
	assert.Equal(t, "0123456", ResolveImageTag("short_sha", "0123456789", "main"))
	assert.Equal(t, "abc", ResolveImageTag("short_sha", "abc", "main"))
	assert.Regexp(t, `^manual-[0-9a-f]{6}$`, ResolveImageTag("short_sha", "latest", "main"))
	assert.Regexp(t, `^manual-[0-9a-f]{6}$`, ResolveImageTag("", "", ""))
}
