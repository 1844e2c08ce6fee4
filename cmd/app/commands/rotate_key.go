package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	keystoreUseCase "github.com/allisson/credx/internal/keystore/usecase"
)

type rotateKeyOutput struct {
	KeyID    string `json:"key_id"`
	Archived string `json:"archived"`
	Active   string `json:"active"`
}

// RunRotateKey replaces the active version of keyID with a fresh one and archives
// the old version. Archived versions stay readable so existing envelopes still open.
func RunRotateKey(
	ctx context.Context,
	manager keystoreUseCase.RotationManager,
	logger *slog.Logger,
	writer io.Writer,
	keyID string,
	format string,
) error {
	format, err := parseFormat(format)
	if err != nil {
		return err
	}

	oldRef, newRef, err := manager.Rotate(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated", slog.String("archived", oldRef.String()), slog.String("active", newRef.String()))

	if format == "json" {
		return writeJSON(writer, rotateKeyOutput{KeyID: keyID, Archived: oldRef.String(), Active: newRef.String()})
	}

	_, _ = fmt.Fprintf(writer, "Key rotated: %s archived, %s active\n", oldRef, newRef)
	return nil
}
