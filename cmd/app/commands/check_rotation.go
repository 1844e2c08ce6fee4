package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// RotationChecker applies the rotation policy to every key.
type RotationChecker interface {
	CheckAndRotate(ctx context.Context) ([]keystoreDomain.KeyRef, error)
}

type checkRotationOutput struct {
	Rotated []string `json:"rotated"`
}

// RunCheckRotation rotates every key the configured policy marks as due.
// Keys rotated before a failure are still reported.
func RunCheckRotation(
	ctx context.Context,
	checker RotationChecker,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	format, err := parseFormat(format)
	if err != nil {
		return err
	}

	refs, checkErr := checker.CheckAndRotate(ctx)

	rotated := make([]string, 0, len(refs))
	for _, ref := range refs {
		rotated = append(rotated, ref.String())
	}
	logger.Info("rotation check completed", slog.Int("rotated", len(rotated)))

	if format == "json" {
		if err := writeJSON(writer, checkRotationOutput{Rotated: rotated}); err != nil {
			return err
		}
	} else if len(rotated) == 0 {
		_, _ = fmt.Fprintln(writer, "No keys due for rotation")
	} else {
		for _, ref := range rotated {
			_, _ = fmt.Fprintf(writer, "Rotated: %s\n", ref)
		}
	}

	if checkErr != nil {
		return fmt.Errorf("failed to check key rotation: %w", checkErr)
	}
	return nil
}
