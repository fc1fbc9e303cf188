package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nano "github.com/nanopay/nanogate/pkg"
)

func TestSendIncludesAction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"frontier":"ABCD","balance":"100"}`))
	}))
	defer srv.Close()

	var resp AccountInfoResponse
	err := NewClient(srv.URL).Send(context.Background(), "account_info",
		AccountInfoRequest{Account: "nano_abc", Representative: true, IncludeConfirmed: true}, &resp)
	require.NoError(t, err)

	assert.Equal(t, "account_info", got["action"])
	assert.Equal(t, "nano_abc", got["account"])
	assert.Equal(t, "ABCD", resp.Frontier)
	assert.Equal(t, "100", resp.Balance)
}

func TestSendErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Account not found"}`))
	}))
	defer srv.Close()

	var resp AccountInfoResponse
	err := NewClient(srv.URL).Send(context.Background(), "account_info", nil, &resp)
	require.Error(t, err)
	assert.True(t, nano.IsRemoteError(err))
	assert.Contains(t, err.Error(), "Account not found")
}

func TestSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Send(context.Background(), "telemetry", nil, nil)
	require.Error(t, err)
	assert.True(t, nano.IsTransportError(err))
}

func TestSendUnreachable(t *testing.T) {
	err := NewClient("http://127.0.0.1:1").Send(context.Background(), "telemetry", nil, nil)
	require.Error(t, err)
	assert.True(t, nano.IsTransportError(err))
}

func TestReceivableBlocksDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int // receivable entries for the account
	}{
		{"object", `{"blocks":{"nano_a":{"HASH1":{"amount":"5","source":"nano_p"}}}}`, 1},
		{"empty string", `{"blocks":""}`, 0},
		{"encoded string", `{"blocks":"{\"nano_a\":{\"HASH1\":{\"amount\":\"5\",\"source\":\"nano_p\"}}}"}`, 1},
		{"null", `{"blocks":null}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp AccountsReceivableResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Len(t, resp.Blocks["nano_a"], tt.want)
		})
	}
}

func TestHeightDecode(t *testing.T) {
	var tele TelemetryResponse
	require.NoError(t, json.Unmarshal([]byte(`{"block_count":"200","cemented_count":190}`), &tele))
	assert.Equal(t, Height(200), tele.BlockCount)
	assert.Equal(t, Height(190), tele.CementedCount)
}
