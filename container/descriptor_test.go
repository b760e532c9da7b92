package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitefw/ignite/container"
)

func TestIDOfAndNamedIDOfDistinctIdentity(t *testing.T) {
	plain := container.IDOf[Clock]()
	named := container.NamedIDOf[Clock]("utc")

	assert.NotEqual(t, plain, named)
	assert.Equal(t, plain.Type, named.Type)
	assert.Equal(t, "utc", named.Name)
}

func TestServiceIdString(t *testing.T) {
	plain := container.IDOf[Clock]()
	named := container.NamedIDOf[Clock]("utc")

	assert.NotContains(t, plain.String(), "[")
	assert.Contains(t, named.String(), "[utc]")
}

func TestDescriptorValidateRejectsMissingFactory(t *testing.T) {
	coll := container.NewCollection()
	err := container.BindFactory[Clock](coll, container.Singleton, nil)
	_ = err // BindFactory with nil factory still registers; validation happens at Build.
	_, buildErr := coll.Build(nil)
	require.Error(t, buildErr)
}

func TestDescriptorValidateRejectsInvalidLifetime(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.Bind[Clock](coll, container.Lifetime(99), func() (Clock, error) {
		return &fakeClock{}, nil
	}))
	_, err := coll.Build(nil)
	require.Error(t, err)
}
