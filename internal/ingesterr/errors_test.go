package ingesterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	require.True(t, IsTransient(Transient(base)))
	require.True(t, IsPermanent(Permanent(base)))
	require.True(t, IsMalformed(Malformed(base)))

	require.False(t, IsPermanent(Transient(base)))
	require.False(t, IsTransient(Permanent(base)))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Transient(base)
	require.ErrorIs(t, wrapped, base)
}

func TestNilIsNil(t *testing.T) {
	require.Nil(t, Transient(nil))
	require.Nil(t, Permanent(nil))
	require.Nil(t, Malformed(nil))
}

func TestUnclassifiedErrorIsNeitherClass(t *testing.T) {
	base := errors.New("plain")
	require.False(t, IsTransient(base))
	require.False(t, IsPermanent(base))
	require.False(t, IsMalformed(base))
}
