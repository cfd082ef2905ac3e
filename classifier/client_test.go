package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmsentinel/txfirewall/features"
)

func TestClassify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scam_probability":0.9,"uncertainty":0.05,"confidence_interval":[0.8,0.95],"model_version":"v1","risk_band":"high"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	pred := c.Classify(context.Background(), features.Vector{})
	require.NotNil(t, pred)
	require.Equal(t, 0.9, pred.ScamProbability)
	require.Equal(t, "high", pred.RiskBand)
}

func TestClassify_UnreachableReturnsNilNotError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	pred := c.Classify(context.Background(), features.Vector{})
	require.Nil(t, pred)
}

func TestClassify_NonOKStatusReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	pred := c.Classify(context.Background(), features.Vector{})
	require.Nil(t, pred)
}
