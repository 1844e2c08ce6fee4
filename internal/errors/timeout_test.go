package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Operation: "pack"}
	if err.Error() != "pack: timeout" {
		t.Errorf("unexpected message '%s'", err.Error())
	}
	if !Is(err, ErrTimeout) {
		t.Error("expected TimeoutError to match ErrTimeout")
	}

	var target *TimeoutError
	if !As(Wrap(err, "dispatch"), &target) || target.Operation != "pack" {
		t.Error("expected As to find TimeoutError")
	}
}

func TestFromContext(t *testing.T) {
	if err := FromContext(context.DeadlineExceeded, "unpack"); !Is(err, ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
	if err := FromContext(context.Canceled, "unpack"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
	if err := FromContext(nil, "unpack"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestCheckContext(t *testing.T) {
	if err := CheckContext(context.Background(), "op"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if err := CheckContext(ctx, "op"); !Is(err, ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}
