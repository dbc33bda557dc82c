package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPSettlementStatusMapping(t *testing.T) {
	var got SettlementRequest
	var respond int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(respond)
	}))
	defer srv.Close()

	settle := NewHTTPSettlement(srv.URL, 5*time.Second)
	req := SettlementRequest{UserID: 1, Amount: 10000, Method: "cash", ConversionRate: 0.0010, Reference: "redemption-1"}

	respond = http.StatusOK
	status, err := settle.Settle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, SettlementConfirmed, status)
	require.Equal(t, req, got)

	respond = http.StatusAccepted
	status, err = settle.Settle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, SettlementPending, status)

	respond = http.StatusBadGateway
	status, err = settle.Settle(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, SettlementFailed, status)
}

func TestHTTPSettlementUnreachableGateway(t *testing.T) {
	settle := NewHTTPSettlement("http://127.0.0.1:1/settle", 500*time.Millisecond)
	status, err := settle.Settle(context.Background(), SettlementRequest{UserID: 1, Amount: 1})
	require.Error(t, err)
	require.Equal(t, SettlementFailed, status)
}
