package dataapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_FollowsIndirectLink(t *testing.T) {
	auth := &fakeAuth{}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Pre-signed URLs carry their own authorization; no bearer token.
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"laps":[1,2,3]}`))
	}))
	defer blobSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, blobSrv.URL+"/offloaded")
	}))
	defer apiSrv.Close()

	client := newTestClient(t, apiSrv.URL, authSrv.URL)

	body, err := client.Get(context.Background(), "/data/results/lap_data", nil)
	require.NoError(t, err)

	// The secondary body, not the wrapper.
	assert.JSONEq(t, `{"laps":[1,2,3]}`, string(body))
}

func TestGet_DoubleIndirectionIsMalformed(t *testing.T) {
	auth := &fakeAuth{}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"link":"https://example.invalid/deeper"}`))
	}))
	defer blobSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, blobSrv.URL+"/offloaded")
	}))
	defer apiSrv.Close()

	client := newTestClient(t, apiSrv.URL, authSrv.URL)

	_, err := client.Get(context.Background(), "/data/results/lap_data", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestGet_NonLinkBodyPassesThrough(t *testing.T) {
	auth := &fakeAuth{}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"cust_id":1},{"cust_id":2}]`))
	}))
	defer apiSrv.Close()

	client := newTestClient(t, apiSrv.URL, authSrv.URL)

	body, err := client.Get(context.Background(), "/data/lookup/drivers", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"cust_id":1},{"cust_id":2}]`, string(body))
}

func TestGet_LinkFetchFailure(t *testing.T) {
	auth := &fakeAuth{}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	blobSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Expired pre-signed URL.
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error>expired</Error>`))
	}))
	defer blobSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, blobSrv.URL+"/offloaded")
	}))
	defer apiSrv.Close()

	client := newTestClient(t, apiSrv.URL, authSrv.URL)

	_, err := client.Get(context.Background(), "/data/results/lap_data", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestIndirectLink(t *testing.T) {
	tests := []struct {
		name string
		body string
		link string
		ok   bool
	}{
		{"object with link", `{"link":"https://cdn/x"}`, "https://cdn/x", true},
		{"object with link and extras", `{"link":"https://cdn/x","expires":120}`, "https://cdn/x", true},
		{"object without link", `{"cust_id":42}`, "", false},
		{"object with empty link", `{"link":""}`, "", false},
		{"array", `[{"link":"https://cdn/x"}]`, "", false},
		{"scalar", `42`, "", false},
		{"string", `"link"`, "", false},
		{"invalid JSON", `{"link":`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, ok := indirectLink([]byte(tt.body))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.link, link)
		})
	}
}
