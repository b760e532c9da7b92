package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitefw/ignite/container"
)

func TestLifetimeString(t *testing.T) {
	assert.Equal(t, "Singleton", container.Singleton.String())
	assert.Equal(t, "Scoped", container.Scoped.String())
	assert.Equal(t, "Transient", container.Transient.String())
	assert.Contains(t, container.Lifetime(99).String(), "Unknown")
}

func TestLifetimeIsValid(t *testing.T) {
	assert.True(t, container.Singleton.IsValid())
	assert.True(t, container.Transient.IsValid())
	assert.False(t, container.Lifetime(-1).IsValid())
	assert.False(t, container.Lifetime(3).IsValid())
}

func TestLifetimeTextRoundTrip(t *testing.T) {
	for _, l := range []container.Lifetime{container.Singleton, container.Scoped, container.Transient} {
		text, err := l.MarshalText()
		require.NoError(t, err)

		var got container.Lifetime
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, l, got)
	}
}

func TestLifetimeUnmarshalTextRejectsUnknown(t *testing.T) {
	var l container.Lifetime
	err := l.UnmarshalText([]byte("eternal"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eternal")
}
