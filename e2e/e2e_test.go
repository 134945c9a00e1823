//go:build e2e

// Package e2e exercises the full client stack in-process against fake
// servers: credential handshake, link indirection, rate-limit retry,
// chunked downloads and token persistence. Run with -tags e2e.
package e2e

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-dev/apexdata/internal/config"
	"github.com/pitwall-dev/apexdata/internal/dataapi"
	"github.com/pitwall-dev/apexdata/internal/tokenfile"
)

// fakeService bundles the three server roles the client talks to: the
// token service, the data API and the unauthenticated blob store.
type fakeService struct {
	auth  *httptest.Server
	api   *httptest.Server
	blobs *httptest.Server

	handshakes atomic.Int32
	apiCalls   atomic.Int32
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	svc := &fakeService{}

	svc.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		switch r.Form.Get("grant_type") {
		case "limited-password":
			svc.handshakes.Add(1)

			// The wire never carries raw secrets.
			assert.NotEqual(t, "hunter2", r.Form.Get("password"))
			assert.NotEqual(t, "client-secret", r.Form.Get("client_secret"))
		case "refresh_token":
			// fine
		default:
			t.Errorf("unexpected grant_type %q", r.Form.Get("grant_type"))
		}

		n := svc.handshakes.Load()
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("tok-%d", n),
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"expires_in":    600,
		})
	}))
	t.Cleanup(svc.auth.Close)

	svc.blobs = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))

		switch filepath.Base(r.URL.Path) {
		case "seasons-doc":
			fmt.Fprint(w, `{"seasons": [{"season_id": 4603}]}`)
		case "0.json":
			fmt.Fprint(w, `[{"lap": 1}, {"lap": 2}]`)
		case "1.json":
			gz := gzip.NewWriter(w)
			fmt.Fprint(gz, `[{"lap": 3}]`)
			gz.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(svc.blobs.Close)

	svc.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		// First authenticated call gets throttled once.
		if svc.apiCalls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		switch r.URL.Path {
		case "/data/series/seasons":
			json.NewEncoder(w).Encode(map[string]string{"link": svc.blobs.URL + "/signed/seasons-doc"})
		case "/data/results/season_results":
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"chunk_info": map[string]any{
						"base_download_url": svc.blobs.URL + "/exports/",
						"chunk_file_names":  []string{"0.json", "1.json"},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(svc.api.Close)

	return svc
}

func (s *fakeService) client(t *testing.T) *dataapi.Client {
	t.Helper()

	creds := dataapi.Credentials{
		Identity:     "Driver@Example.com",
		Secret:       "hunter2",
		ClientID:     "client-1",
		ClientSecret: "client-secret",
	}

	client := dataapi.NewClient(s.api.URL, s.auth.URL, creds, s.api.Client(), nil)

	return client
}

func TestLifecycle(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t)
	ctx := context.Background()

	// Cold session: handshake, one throttle, then an indirect document.
	payload, err := client.Get(ctx, "/data/series/seasons", url.Values{"season_year": {"2026"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seasons": [{"season_id": 4603}]}`, string(payload))
	assert.EqualValues(t, 1, svc.handshakes.Load())

	// Chunked export reassembling every chunk, gzip included.
	payload, err = client.Get(ctx, "/data/results/season_results", nil)
	require.NoError(t, err)

	var envelope struct {
		Data struct {
			ChunkInfo dataapi.ChunkDescriptor `json:"chunk_info"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &envelope))

	records, err := client.DownloadAllChunks(ctx, envelope.Data.ChunkInfo)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.JSONEq(t, `{"lap": 3}`, string(records[2]))

	// The whole session reused the single handshake.
	assert.EqualValues(t, 1, svc.handshakes.Load())
}

func TestTokenPersistenceRoundtrip(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t)
	ctx := context.Background()

	require.NoError(t, client.Authenticate(ctx))

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, tokenfile.Save(path, client.Token(), "driver@example.com"))

	// A fresh client seeded from disk never re-handshakes.
	fresh := svc.client(t)
	tok, account, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "driver@example.com", account)
	fresh.SetToken(tok)

	_, err = fresh.Get(ctx, "/data/series/seasons", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, svc.handshakes.Load())
}

func TestConfigDrivesClient(t *testing.T) {
	svc := newFakeService(t)

	t.Setenv(config.EnvBaseURL, svc.api.URL)
	t.Setenv(config.EnvTokenURL, svc.auth.URL)
	t.Setenv(config.EnvIdentity, "driver@example.com")
	t.Setenv(config.EnvClientID, "client-1")
	t.Setenv(config.EnvPassword, "hunter2")
	t.Setenv(config.EnvClientSecret, "client-secret")
	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "absent.toml"))

	resolved, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{})
	require.NoError(t, err)
	require.True(t, resolved.HasCredentials())

	client := dataapi.NewClient(resolved.BaseURL, resolved.TokenURL, dataapi.Credentials{
		Identity:     resolved.Identity,
		Secret:       resolved.Password,
		ClientID:     resolved.ClientID,
		ClientSecret: resolved.ClientSecret,
	}, svc.api.Client(), nil)

	_, err = client.Get(context.Background(), "/data/series/seasons", nil)
	require.NoError(t, err)
}
