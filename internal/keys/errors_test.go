package keys

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStorageError(t *testing.T) {
	cause := errors.New("permission denied")

	err := NewStorageError("save", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage save: permission denied", err.Error())

	assert.Same(t, err, NewStorageError("load", err), "already wrapped errors pass through")
	assert.Nil(t, NewStorageError("load", nil))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{notFound("X"), "not_found"},
		{fmt.Errorf("%w: X", ErrAlreadyBound), "already_bound"},
		{invalidf("bad"), "invalid_argument"},
		{fmt.Errorf("%w: X", ErrInactive), "inactive"},
		{NewStorageError("load", errors.New("x")), "storage_error"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestUUIDGenerator(t *testing.T) {
	id, err := UUIDGenerator{}.NewID()
	assert.NoError(t, err)
	assert.Len(t, id, DefaultIDLength)
	assert.Regexp(t, `^[0-9A-F]+$`, id)

	short, err := UUIDGenerator{Length: 12}.NewID()
	assert.NoError(t, err)
	assert.Len(t, short, 12)
}

func TestDecode(t *testing.T) {
	c, err := Decode(nil)
	assert.NoError(t, err)
	assert.NotNil(t, c.Keys)

	_, err = Decode([]byte(`{"keys":[{"key":"A"},{"key":"A"}]}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"keys":[{"created":"2024-01-01T00:00:00Z"}]}`))
	assert.Error(t, err)

	data, err := Encode(nil)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"keys":[]}`, string(data))
}
