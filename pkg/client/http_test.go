package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-aggregator/pkg/types"
)

type queryParams struct {
	ChainID  uint64   `url:"chainId"`
	Token    string   `url:"token"`
	Limit    int      `url:"limit,omitempty"`
	Excluded []string `url:"excluded,omitempty"`
	Dry      bool     `url:"dry"`
	Ignored  string
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(&queryParams{ChainID: 10, Token: "0xabc", Excluded: []string{"a", "b"}})
	assert.Equal(t, "chainId=10&dry=false&excluded=a%2Cb&token=0xabc", q)

	assert.Equal(t, "", BuildQuery(nil))
	assert.Equal(t, "", BuildQuery("not a struct"))
	assert.Equal(t, "", BuildQuery((*queryParams)(nil)))
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "10", r.URL.Query().Get("chainId"))
			w.Write([]byte(`{"value":"42"}`))
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errorMessage":"amount too low"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`upstream down`))
		}
	}))
	defer server.Close()

	c := NewHTTPClient(HTTPClientConfig{Provider: types.ProviderAcross, BaseURL: server.URL + "/"})

	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/ok", &queryParams{ChainID: 10}, &out))
	assert.Equal(t, "42", out.Value)

	err := c.GetJSON(context.Background(), "/bad", nil, &out)
	var apiErr *types.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "amount too low", apiErr.Message)

	err = c.GetJSON(context.Background(), "/down", nil, &out)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestGetJSONHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := NewHTTPClient(HTTPClientConfig{Provider: types.ProviderDeBridge, BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out map[string]interface{}
	assert.Error(t, c.GetJSON(ctx, "/", nil, &out))
}

func TestGetJSONDoesNotRetryServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewHTTPClient(HTTPClientConfig{Provider: types.ProviderSynapse, BaseURL: server.URL})

	var out map[string]interface{}
	err := c.GetJSON(context.Background(), "/bridge", nil, &out)
	var apiErr *types.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
