package wakelock

import (
	"context"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	lock, err := Nop{}.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestScreenSaverWithoutBus(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/nonexistent/bitbox-test-bus")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := NewScreenSaver("bitbox", "Playing audio").Acquire(ctx); err == nil {
		t.Error("Acquire() expected error without a session bus")
	}
}
