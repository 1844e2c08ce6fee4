// Package integration runs the exchange end to end against PostgreSQL and MySQL.
// Tests skip when the database is not reachable.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/credx/internal/app"
	"github.com/allisson/credx/internal/config"
	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	"github.com/allisson/credx/internal/exchange/http/dto"
	exchangeService "github.com/allisson/credx/internal/exchange/service"
	exchangeUseCase "github.com/allisson/credx/internal/exchange/usecase"
	"github.com/allisson/credx/internal/testutil"
)

func integrationConfig(t *testing.T, driver, dsn string) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:               "error",
		ServerHost:             "localhost",
		KeyStorePath:           filepath.Join(t.TempDir(), "keystore.bin"),
		KeyStorePassphrase:     "integration passphrase",
		KeyStoreArgon2Time:     1,
		KeyStoreArgon2MemoryKB: 1024,
		KeyStoreArgon2Threads:  1,
		RotationCheckInterval:  time.Minute,
		DispatchTimeout:        10 * time.Second,
		FlowTTL:                time.Hour,
		OIDCIssuerURL:          "https://issuer.example.com",
		FlowLogEnabled:         true,
		DBDriver:               driver,
		DBConnectionString:     dsn,
		DBMaxOpenConnections:   5,
		DBMaxIdleConnections:   1,
		DBConnMaxLifetime:      time.Minute,
		MetricsEnabled:         false,
		MetricsNamespace:       "credx_integration",
	}
}

func TestIntegration_FlowLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		driver string
		setup  func(t *testing.T)
	}{
		{
			driver: "postgres",
			setup: func(t *testing.T) {
				testutil.SkipIfNoPostgres(t)
				db := testutil.SetupPostgresDB(t)
				testutil.TeardownDB(t, db)
			},
		},
		{
			driver: "mysql",
			setup: func(t *testing.T) {
				testutil.SkipIfNoMySQL(t)
				db := testutil.SetupMySQLDB(t)
				testutil.TeardownDB(t, db)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			tt.setup(t)

			dsn := testutil.GetPostgresTestDSN()
			if tt.driver == "mysql" {
				dsn = testutil.GetMySQLTestDSN()
			}
			runIssuanceFlow(t, app.NewContainer(integrationConfig(t, tt.driver, dsn)), tt.driver)
		})
	}
}

func runIssuanceFlow(t *testing.T, container *app.Container, driver string) {
	ctx := context.Background()
	defer func() { assert.NoError(t, container.Shutdown(ctx)) }()

	manager, err := container.RotationManager()
	require.NoError(t, err)
	_, err = manager.Create(ctx, "did:example:issuer#key-1", cryptoDomain.X25519)
	require.NoError(t, err)
	_, err = manager.Create(ctx, "did:example:holder#key-1", cryptoDomain.X25519)
	require.NoError(t, err)

	useCase, err := container.ExchangeUseCase()
	require.NoError(t, err)

	offer, err := useCase.OfferCredential(ctx, &exchangeUseCase.OfferInput{
		Protocol:  exchangeService.P2PProtocolName,
		MessageID: "integration-offer",
		Issuer:    exchangeDomain.Party{ID: "did:example:issuer", KeyID: "did:example:issuer#key-1"},
		Holder:    exchangeDomain.Party{ID: "did:example:holder", KeyID: "did:example:holder#key-1"},
		Claims:    map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)

	request, err := useCase.RequestCredential(ctx, &exchangeUseCase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
		MessageID:   "integration-request",
		ReferenceID: "integration-offer",
		Attachment:  offer.Wire,
	})
	require.NoError(t, err)

	_, err = useCase.IssueCredential(ctx, &exchangeUseCase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
		MessageID:   "integration-issue",
		ReferenceID: "integration-request",
		Attachment:  request.Wire,
	})
	require.NoError(t, err)

	db, err := container.DB()
	require.NoError(t, err)
	assert.Equal(t, 3, testutil.CountFlowRecords(t, db, driver, offer.ThreadID))

	server, err := container.HTTPServer()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	server.GetHandler().ServeHTTP(w, httptest.NewRequest(
		http.MethodGet, "/v1/exchange/threads/"+offer.ThreadID+"/history", nil,
	))
	require.Equal(t, http.StatusOK, w.Code)

	var history dto.ListResponse[dto.FlowRecordResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Data, 3)
	assert.Equal(t, string(exchangeDomain.StateOffered), history.Data[0].State)
	assert.Equal(t, string(exchangeDomain.StateRequested), history.Data[1].State)
	assert.Equal(t, string(exchangeDomain.StateIssued), history.Data[2].State)
	assert.Equal(t, "did:example:issuer", history.Data[0].From)

	w = httptest.NewRecorder()
	server.GetHandler().ServeHTTP(w, httptest.NewRequest(
		http.MethodGet, "/v1/exchange/threads/"+offer.ThreadID+"/history?offset=1&limit=1", nil,
	))
	require.Equal(t, http.StatusOK, w.Code)

	var page dto.ListResponse[dto.FlowRecordResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, string(exchangeDomain.StateRequested), page.Data[0].State)
}
