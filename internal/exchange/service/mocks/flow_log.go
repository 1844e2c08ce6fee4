// Package mocks provides testify mocks for the exchange services.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// MockFlowLog is a mock implementation of service.FlowLog.
type MockFlowLog struct {
	mock.Mock
}

func (m *MockFlowLog) AppendRecord(ctx context.Context, record *exchangeDomain.FlowRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockFlowLog) QueryByParticipant(
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

func (m *MockFlowLog) QueryByThread(
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

// MockProtocol is a mock implementation of service.Protocol.
type MockProtocol struct {
	mock.Mock
}

func (m *MockProtocol) Execute(
	ctx context.Context,
	op exchangeDomain.Operation,
	req *exchangeDomain.Request,
) (*exchangeDomain.Response, error) {
	args := m.Called(ctx, op, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchangeDomain.Response), args.Error(1)
}
