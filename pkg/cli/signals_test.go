package cli

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled too early")
	default:
	}

	stop()
	assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 10*time.Millisecond)
}

func TestSetupSignalHandler_SIGTERM(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal test in short mode")
	}

	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestReloadSignals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal test in short mode")
	}

	ch, stop := ReloadSignals()
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case sig := <-ch:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(time.Second):
		t.Fatal("SIGHUP not delivered")
	}
}
