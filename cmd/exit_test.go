package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	testhost "github.com/ethereum-optimism/infra/op-testhost"
	"github.com/ethereum-optimism/infra/op-testhost/flags"
)

func TestExitMessage(t *testing.T) {
	setup := func(err error) error {
		return errors.Join(fmt.Errorf("failed to setup: %w", err), context.Canceled)
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"failures are silent", testhost.NewFailureError(2), ""},
		{"usage", setup(testhost.NewUsageError(errors.New("file not found: a.test"))), "error: file not found: a.test"},
		{"flag value", &flags.ValueError{Flag: "parallel", Err: errors.New("x")}, "error: incorrect argument value for -parallel: x"},
		{"host", setup(testhost.NewHostError(errors.New("boom"))), "host error: boom"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitMessage(tt.err))
		})
	}
}
