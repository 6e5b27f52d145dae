package apperrors

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"validation", Validation("missing to"), CodeValidation},
		{"wrapped with pkg/errors", errors.Wrap(Configuration("no creds"), "dispatch"), CodeConfiguration},
		{"wrapped with fmt", fmt.Errorf("send: %w", Transport(io.EOF)), CodeTransport},
		{"plain error", io.EOF, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestTransportKeepsCause(t *testing.T) {
	err := Transport(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "transport: unexpected EOF", err.Error())
	assert.False(t, Is(nil, CodeTransport))
}
