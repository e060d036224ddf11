package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(MissingData, "train", nil))
}

func TestIsKind(t *testing.T) {
	err := New(MissingData, "sample.pull", "not enough samples")
	assert.True(t, Is(err, MissingData))
	assert.False(t, Is(err, NoModel))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StorageError, "eventstore.insert", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StorageError, GetKind(err))
}

func TestGetKindUnrecognized(t *testing.T) {
	assert.Equal(t, Fatal, GetKind(errors.New("boom")))
	assert.Equal(t, Success, GetKind(nil))
}

func TestWrapf(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrapf(StorageError, "eventstore.range", cause, "host=%s", "abc")
	assert.Contains(t, err.Error(), "host=abc")
}
