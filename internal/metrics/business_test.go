package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the exposition output has a sample of name whose
// labels match the partial pattern and whose value is value. The exporter adds
// scope labels, hence the regex.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")

	require.NoError(t, err)
	assert.NotNil(t, bm)
}

func TestBusinessMetrics_Exposition(t *testing.T) {
	provider, err := NewProvider("credx_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "credx_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "exchange", "offer_credential", "success")
	bm.RecordOperation(ctx, "exchange", "offer_credential", "success")
	bm.RecordOperation(ctx, "exchange", "issue_credential", "error")
	bm.RecordOperation(ctx, "keystore", "key_rotate", "success")

	bm.RecordDuration(ctx, "exchange", "offer_credential", 40*time.Millisecond, "success")
	bm.RecordDuration(ctx, "exchange", "offer_credential", 60*time.Millisecond, "success")
	bm.RecordDuration(ctx, "keystore", "key_rotate", 150*time.Millisecond, "success")

	output := scrape(t, provider)

	assertMetricLine(t, output, `credx_test_operations_total`,
		`domain="exchange".*operation="offer_credential".*status="success"`, `2`)
	assertMetricLine(t, output, `credx_test_operations_total`,
		`domain="exchange".*operation="issue_credential".*status="error"`, `1`)
	assertMetricLine(t, output, `credx_test_operations_total`,
		`domain="keystore".*operation="key_rotate".*status="success"`, `1`)
	assertMetricLine(t, output, `credx_test_operation_duration_seconds_count`,
		`domain="exchange".*operation="offer_credential".*status="success"`, `2`)
	assertMetricLine(t, output, `credx_test_operation_duration_seconds_sum`,
		`domain="keystore".*operation="key_rotate".*status="success"`, ``)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	bm := NewNoOpBusinessMetrics()

	assert.NotPanics(t, func() {
		bm.RecordOperation(context.Background(), "exchange", "offer_credential", "success")
		bm.RecordDuration(context.Background(), "keystore", "key_rotate", time.Second, "error")
	})
}
