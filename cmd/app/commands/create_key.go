package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	keystoreUseCase "github.com/allisson/credx/internal/keystore/usecase"
)

type createKeyOutput struct {
	KeyID   string `json:"key_id"`
	Version int    `json:"version"`
	Ref     string `json:"ref"`
	Type    string `json:"type"`
}

// RunCreateKey generates a new key of keyType under keyID. It fails when keyID
// already has an active version; use rotate-key to replace it.
func RunCreateKey(
	ctx context.Context,
	manager keystoreUseCase.RotationManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
	keyTypeStr string,
	format string,
) error {
	keyType, err := parseKeyType(keyTypeStr)
	if err != nil {
		return err
	}
	if format, err = parseFormat(format); err != nil {
		return err
	}

	ref, err := manager.Create(ctx, keyID, keyType)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	logger.Info("key created", slog.String("key", ref.String()), slog.String("type", string(keyType)))

	if format == "json" {
		return writeJSON(writer, createKeyOutput{
			KeyID:   ref.KeyID,
			Version: ref.Version,
			Ref:     ref.String(),
			Type:    string(keyType),
		})
	}

	_, _ = fmt.Fprintf(writer, "Key created: %s (%s)\n", ref, keyType)
	return nil
}
