package main

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRunReturnsConfigErrors(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	err := run()
	assert.ErrorContains(t, err, "invalid configuration")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestRunReturnsServerErrors(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "-1")
	for _, key := range []string{"B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"} {
		t.Setenv(key, "")
	}

	// The listener fails after the gateway and services are up; run must
	// come back so their deferred Close calls run.
	err := run()
	assert.ErrorContains(t, err, "failed to start server")
}
