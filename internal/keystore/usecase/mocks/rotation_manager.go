// Package mocks provides testify mocks for the key store use cases.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// MockRotationManager is a mock implementation of usecase.RotationManager.
type MockRotationManager struct {
	mock.Mock
}

func (m *MockRotationManager) Create(
	ctx context.Context,
	keyID string,
	keyType cryptoDomain.KeyType,
) (keystoreDomain.KeyRef, error) {
	args := m.Called(ctx, keyID, keyType)
	return args.Get(0).(keystoreDomain.KeyRef), args.Error(1)
}

func (m *MockRotationManager) ShouldRotate(ctx context.Context, keyID string) (bool, error) {
	args := m.Called(ctx, keyID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRotationManager) BeginRotation(
	ctx context.Context,
	keyID string,
) (keystoreDomain.KeyRef, keystoreDomain.KeyRef, error) {
	args := m.Called(ctx, keyID)
	return args.Get(0).(keystoreDomain.KeyRef), args.Get(1).(keystoreDomain.KeyRef), args.Error(2)
}

func (m *MockRotationManager) CompleteRotation(ctx context.Context, keyID string) ([]keystoreDomain.KeyRef, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]keystoreDomain.KeyRef), args.Error(1)
}

func (m *MockRotationManager) Rotate(
	ctx context.Context,
	keyID string,
) (keystoreDomain.KeyRef, keystoreDomain.KeyRef, error) {
	args := m.Called(ctx, keyID)
	return args.Get(0).(keystoreDomain.KeyRef), args.Get(1).(keystoreDomain.KeyRef), args.Error(2)
}

func (m *MockRotationManager) RecordUse(ref keystoreDomain.KeyRef) {
	m.Called(ref)
}

func (m *MockRotationManager) FlushUsage(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
