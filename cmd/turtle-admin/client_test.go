package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turtle-gateway/internal/protocol"
)

func TestAPIClient_DecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"turtle 1 disconnected"}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL+"/", "tok")
	err := c.do(context.Background(), http.MethodPost, "/api/turtles/1/queue", map[string]string{"action": "Nothing"}, nil)
	require.Error(t, err)

	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "turtle 1 disconnected", apiErr.Message)
}

func TestAPIClient_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":3}]`))
	}))
	defer srv.Close()

	var out []struct {
		ID int `json:"id"`
	}
	require.NoError(t, newAPIClient(srv.URL, "").do(context.Background(), http.MethodGet, "/api/turtles", nil, &out))
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].ID)
}

func TestAPIClient_WSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/turtle_updates", newAPIClient("http://localhost:8080", "").wsURL("/turtle_updates"))
	assert.Equal(t, "wss://gw.example.ts.net/turtle_updates", newAPIClient("https://gw.example.ts.net/", "").wsURL("/turtle_updates"))
}

func TestParsePosition(t *testing.T) {
	p, err := parsePosition("1, -2,30")
	require.NoError(t, err)
	assert.Equal(t, protocol.Position{X: 1, Y: -2, Z: 30}, p)

	for _, bad := range []string{"", "1,2", "1,2,3,4", "a,b,c"} {
		_, err := parsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTurtleID(t *testing.T) {
	id, rest, err := parseTurtleID([]string{"4", "--limit", "2"})
	require.NoError(t, err)
	assert.Equal(t, 4, id)
	assert.Equal(t, []string{"--limit", "2"}, rest)

	_, _, err = parseTurtleID(nil)
	assert.Error(t, err)
	_, _, err = parseTurtleID([]string{"0"})
	assert.Error(t, err)
}
