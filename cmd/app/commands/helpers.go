// Package commands contains the CLI command implementations. Each Run function
// takes its collaborators and an output writer so it can be tested without the
// DI container.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// parseKeyType converts the --type flag to a key type.
func parseKeyType(s string) (cryptoDomain.KeyType, error) {
	keyType := cryptoDomain.KeyType(strings.ToLower(strings.TrimSpace(s)))
	if !keyType.Valid() {
		return "", fmt.Errorf("invalid key type: %s (valid options: x25519, p256, ed25519, symmetric)", s)
	}
	return keyType, nil
}

// parseFormat validates the --format flag.
func parseFormat(format string) (string, error) {
	switch format {
	case "", "text":
		return "text", nil
	case "json":
		return "json", nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(writer io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(writer, string(jsonBytes))
	return err
}
