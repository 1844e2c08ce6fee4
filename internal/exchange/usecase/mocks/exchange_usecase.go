// Package mocks provides testify mocks for the exchange use case.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	"github.com/allisson/credx/internal/exchange/usecase"
)

// MockExchangeUseCase is a mock implementation of usecase.ExchangeUseCase.
type MockExchangeUseCase struct {
	mock.Mock
}

func (m *MockExchangeUseCase) result(args mock.Arguments) (*exchangeDomain.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchangeDomain.Result), args.Error(1)
}

func (m *MockExchangeUseCase) OfferCredential(
	ctx context.Context,
	input *usecase.OfferInput,
) (*exchangeDomain.Result, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockExchangeUseCase) RequestCredential(
	ctx context.Context,
	input *usecase.StepInput,
) (*exchangeDomain.Result, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockExchangeUseCase) IssueCredential(
	ctx context.Context,
	input *usecase.StepInput,
) (*exchangeDomain.Result, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockExchangeUseCase) RequestProof(
	ctx context.Context,
	input *usecase.ProofRequestInput,
) (*exchangeDomain.Result, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockExchangeUseCase) PresentProof(
	ctx context.Context,
	input *usecase.StepInput,
) (*exchangeDomain.Result, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockExchangeUseCase) Flow(ctx context.Context, flowID string) (*exchangeDomain.ExchangeFlow, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchangeDomain.ExchangeFlow), args.Error(1)
}

func (m *MockExchangeUseCase) FlowsByThread(
	ctx context.Context,
	threadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*exchangeDomain.ExchangeFlow), args.Error(1)
}

func (m *MockExchangeUseCase) ChildFlows(
	ctx context.Context,
	parentThreadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	args := m.Called(ctx, parentThreadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*exchangeDomain.ExchangeFlow), args.Error(1)
}

func (m *MockExchangeUseCase) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockExchangeUseCase) Protocols(ctx context.Context) []exchangeDomain.ProtocolDescriptor {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]exchangeDomain.ProtocolDescriptor)
}

func (m *MockExchangeUseCase) History(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	args := m.Called(ctx, threadID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*exchangeDomain.FlowRecord), args.Error(1)
}

func (m *MockExchangeUseCase) ParticipantHistory(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	args := m.Called(ctx, participant, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*exchangeDomain.FlowRecord), args.Error(1)
}
