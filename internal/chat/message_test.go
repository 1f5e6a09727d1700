package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid mixed charset", input: "valid_1-User"},
		{name: "single character", input: "a"},
		{name: "max length", input: strings.Repeat("a", 20)},
		{name: "surrounding whitespace", input: " alice\t", wantErr: true},
		{name: "trailing newline", input: "bob\n", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 21), wantErr: true},
		{name: "space inside", input: "bad name!", wantErr: true},
		{name: "punctuation", input: "alice.b", wantErr: true},
		{name: "non-ascii letter", input: "zoë", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidUsername))
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantOK  bool
		wantErr error
	}{
		{name: "plain", input: "hello", want: "hello", wantOK: true},
		{name: "trimmed", input: "  hello \n", want: "hello", wantOK: true},
		{name: "exactly max", input: strings.Repeat("x", 500), want: strings.Repeat("x", 500), wantOK: true},
		{name: "max after trim", input: " " + strings.Repeat("x", 500) + " ", want: strings.Repeat("x", 500), wantOK: true},
		{name: "multibyte counts runes", input: strings.Repeat("é", 500), want: strings.Repeat("é", 500), wantOK: true},
		{name: "one over max", input: strings.Repeat("x", 501), wantErr: ErrMessageTooLong},
		{name: "empty", input: ""},
		{name: "whitespace only", input: " \t\n "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := NormalizeBody(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStoreFailureMatchesSentinel(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := StoreFailure(cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, ErrStoreUnavailable.Message, err.Error())
	assert.False(t, errors.Is(err, ErrNotJoined))
}

func TestHistoryFailureMatchesSentinel(t *testing.T) {
	cause := errors.New("no such table: messages")
	err := HistoryFailure(cause)

	assert.ErrorIs(t, err, ErrHistoryUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, "chat history is unavailable", err.Error())
	assert.False(t, errors.Is(err, ErrStoreUnavailable))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("boom")))
	assert.Equal(t, "unknown", Kind(0).String())
	assert.Equal(t, "conflict", KindOf(ErrUsernameTaken).String())
}
