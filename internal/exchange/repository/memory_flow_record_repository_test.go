package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

func TestInMemoryFlowRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryFlowRecordRepository()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	request := newTestRecord()
	request.ID = uuid.Must(uuid.NewV7())
	request.Operation = exchangeDomain.RequestCredential
	request.State = exchangeDomain.StateRequested
	request.From, request.To = request.To, request.From
	request.CreatedAt = base.Add(time.Second)

	offer := newTestRecord()
	offer.CreatedAt = base

	other := newTestRecord()
	other.ID = uuid.Must(uuid.NewV7())
	other.ThreadID = "offer-2"
	other.To = "did:example:carol"
	other.CreatedAt = base.Add(2 * time.Second)

	require.NoError(t, repo.AppendRecord(ctx, request))
	require.NoError(t, repo.AppendRecord(ctx, offer))
	require.NoError(t, repo.AppendRecord(ctx, other))

	t.Run("ByThreadOldestFirst", func(t *testing.T) {
		records, err := repo.QueryByThread(ctx, "offer-1", 0, 50)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, exchangeDomain.OfferCredential, records[0].Operation)
		assert.Equal(t, exchangeDomain.RequestCredential, records[1].Operation)
	})

	t.Run("ByParticipantEitherSide", func(t *testing.T) {
		records, err := repo.QueryByParticipant(ctx, "did:example:holder", 0, 50)
		require.NoError(t, err)
		assert.Len(t, records, 2)

		records, err = repo.QueryByParticipant(ctx, "did:example:issuer", 0, 50)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("Paginated", func(t *testing.T) {
		records, err := repo.QueryByParticipant(ctx, "did:example:issuer", 1, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, exchangeDomain.RequestCredential, records[0].Operation)

		records, err = repo.QueryByParticipant(ctx, "did:example:issuer", 2, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "offer-2", records[0].ThreadID)

		records, err = repo.QueryByThread(ctx, "offer-1", 5, 10)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		records, err := repo.QueryByThread(ctx, "offer-2", 0, 50)
		require.NoError(t, err)
		records[0].State = exchangeDomain.StateExpired

		again, err := repo.QueryByThread(ctx, "offer-2", 0, 50)
		require.NoError(t, err)
		assert.Equal(t, exchangeDomain.StateOffered, again[0].State)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, repo.AppendRecord(canceled, newTestRecord()), context.Canceled)
	})
}

func TestInMemoryFlowRecordRepository_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryFlowRecordRepository()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendRecord(ctx, newTestRecord()))
			_, err := repo.QueryByThread(ctx, "offer-1", 0, 100)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := repo.QueryByThread(ctx, "offer-1", 0, 100)
	require.NoError(t, err)
	assert.Len(t, records, 50)
}
