package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// KeyLister is the read side of the key store used by list-keys.
type KeyLister interface {
	List(ctx context.Context) ([]string, error)
	Versions(ctx context.Context, keyID string) ([]*keystoreDomain.KeyMaterial, error)
}

type keyVersionOutput struct {
	KeyID     string     `json:"key_id"`
	Version   int        `json:"version"`
	Type      string     `json:"type"`
	State     string     `json:"state"`
	PublicKey string     `json:"public_key,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}

// RunListKeys prints every version of every key. Private halves are never printed.
func RunListKeys(
	ctx context.Context,
	store KeyLister,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	format, err := parseFormat(format)
	if err != nil {
		return err
	}

	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	output := make([]keyVersionOutput, 0, len(ids))
	for _, id := range ids {
		versions, err := store.Versions(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read versions of %s: %w", id, err)
		}
		for _, v := range versions {
			item := keyVersionOutput{
				KeyID:     v.KeyID,
				Version:   v.Version,
				Type:      string(v.Type),
				State:     string(v.State),
				CreatedAt: v.CreatedAt,
				RotatedAt: v.RotatedAt,
			}
			if len(v.Public) > 0 {
				item.PublicKey = base64.RawURLEncoding.EncodeToString(v.Public)
			}
			v.Zero()
			output = append(output, item)
		}
	}

	logger.Debug("keys listed", slog.Int("keys", len(ids)), slog.Int("versions", len(output)))

	if format == "json" {
		return writeJSON(writer, output)
	}

	if len(output) == 0 {
		_, _ = fmt.Fprintln(writer, "No keys found")
		return nil
	}
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY ID\tVERSION\tTYPE\tSTATE\tCREATED AT")
	for _, item := range output {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			item.KeyID, item.Version, item.Type, item.State, item.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
