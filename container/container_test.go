package container_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitefw/ignite/container"
	"github.com/ignitefw/ignite/internal/envprovider"
)

type Clock interface{ Now() int }

type fakeClock struct{ t int }

func (c *fakeClock) Now() int { return c.t }

type Greeter interface{ Greet() string }

type englishGreeter struct{}

func (englishGreeter) Greet() string { return "hello" }

type frenchGreeter struct{}

func (frenchGreeter) Greet() string { return "bonjour" }

func buildBasic(t *testing.T) *container.Container {
	t.Helper()
	coll := container.NewCollection()
	require.NoError(t, container.BindSingleton[Clock](coll, func() (Clock, error) {
		return &fakeClock{t: 42}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)
	return ct
}

func TestResolveSingleton(t *testing.T) {
	ct := buildBasic(t)
	c1, err := container.Resolve[Clock](ct, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, c1.Now())
}

func TestSingletonBuiltOnceUnderConcurrency(t *testing.T) {
	var builds int32
	coll := container.NewCollection()
	require.NoError(t, container.BindSingleton[Clock](coll, func() (Clock, error) {
		atomic.AddInt32(&builds, 1)
		return &fakeClock{t: 7}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	results := make([]Clock, goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := container.Resolve[Clock](ct, nil)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestScopedServiceIsolatedPerScope(t *testing.T) {
	var builds int32
	coll := container.NewCollection()
	require.NoError(t, container.BindScoped[Clock](coll, func() (Clock, error) {
		n := atomic.AddInt32(&builds, 1)
		return &fakeClock{t: int(n)}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	scopeA := ct.CreateScope()
	defer scopeA.Dispose()
	scopeB := ct.CreateScope()
	defer scopeB.Dispose()

	a1, err := container.Resolve[Clock](ct, scopeA)
	require.NoError(t, err)
	a2, err := container.Resolve[Clock](ct, scopeA)
	require.NoError(t, err)
	b1, err := container.Resolve[Clock](ct, scopeB)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b1)
}

func TestResolveScopedWithoutScopeFails(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindScoped[Clock](coll, func() (Clock, error) {
		return &fakeClock{}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	_, err = container.Resolve[Clock](ct, nil)
	require.Error(t, err)
}

func TestTransientBuildsFreshEveryTime(t *testing.T) {
	var builds int32
	coll := container.NewCollection()
	require.NoError(t, container.BindTransient[Clock](coll, func() (Clock, error) {
		n := atomic.AddInt32(&builds, 1)
		return &fakeClock{t: int(n)}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	c1, err := container.Resolve[Clock](ct, nil)
	require.NoError(t, err)
	c2, err := container.Resolve[Clock](ct, nil)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.EqualValues(t, 2, builds)
}

func TestResolveScopedDisposal(t *testing.T) {
	var disposed int32
	coll := container.NewCollection()
	require.NoError(t, container.BindScoped[*disposableSvc](coll, func() (*disposableSvc, error) {
		return &disposableSvc{counter: &disposed}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	scope := ct.CreateScope()
	_, err = container.Resolve[*disposableSvc](ct, scope)
	require.NoError(t, err)
	require.NoError(t, scope.Dispose())
	assert.EqualValues(t, 1, atomic.LoadInt32(&disposed))

	_, err = container.Resolve[*disposableSvc](ct, scope)
	require.Error(t, err)
	assert.True(t, container.IsScopeDisposed(err))
}

type disposableSvc struct {
	counter *int32
}

func (d *disposableSvc) Dispose() error {
	atomic.AddInt32(d.counter, 1)
	return nil
}

func TestResolveNotFound(t *testing.T) {
	ct := buildBasic(t)
	_, err := container.Resolve[Greeter](ct, nil)
	require.Error(t, err)
	assert.True(t, container.IsNotFound(err))
}

func TestResolveNamed(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindNamed[Greeter](coll, "en", container.Singleton, func() (Greeter, error) {
		return englishGreeter{}, nil
	}))
	require.NoError(t, container.BindNamed[Greeter](coll, "fr", container.Singleton, func() (Greeter, error) {
		return frenchGreeter{}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	en, err := container.ResolveNamed[Greeter](ct, "en", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", en.Greet())

	fr, err := container.ResolveNamed[Greeter](ct, "fr", nil)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", fr.Greet())
}

func TestResolveAllPreservesRegistrationOrder(t *testing.T) {
	coll := container.NewCollection()
	cb := container.BindCollection[Greeter](coll, container.Singleton)
	cb.Add(func() (any, error) { return englishGreeter{}, nil })
	cb.AddNamed("fr", func() (any, error) { return frenchGreeter{}, nil })
	require.NoError(t, cb.Err())

	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	all, err := container.ResolveAll[Greeter](ct, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "hello", all[0].Greet())
	assert.Equal(t, "bonjour", all[1].Greet())
}

func TestOverrideReplacesEarlierRegistration(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindSingleton[Greeter](coll, func() (Greeter, error) {
		return englishGreeter{}, nil
	}))
	require.NoError(t, container.BindSingleton[Greeter](coll, func() (Greeter, error) {
		return frenchGreeter{}, nil
	}))
	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	g, err := container.Resolve[Greeter](ct, nil)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", g.Greet())
}

func TestConditionalBindingDroppedWhenConditionFails(t *testing.T) {
	coll := container.NewCollection()
	container.BindWith[Greeter](coll, container.Singleton, func() (Greeter, error) {
		return frenchGreeter{}, nil
	}).WhenEnv("LOCALE", "fr")

	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	_, err = container.Resolve[Greeter](ct, nil)
	require.Error(t, err)
	assert.True(t, container.IsNotFound(err))
}

func TestConditionalBindingAppliedWhenConditionHolds(t *testing.T) {
	coll := container.NewCollection()
	container.BindWith[Greeter](coll, container.Singleton, func() (Greeter, error) {
		return frenchGreeter{}, nil
	}).WhenEnv("LOCALE", "fr")

	env := envprovider.NewFake().SetEnv("LOCALE", "fr")
	ct, err := coll.Build(env)
	require.NoError(t, err)

	g, err := container.Resolve[Greeter](ct, nil)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", g.Greet())
}

type cycleA struct{ b *cycleB }
type cycleB struct{ a *cycleA }

func TestBuildDetectsCircularDependency(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindInjectableSingleton[*cycleA](coll,
		[]container.ServiceId{container.IDOf[*cycleB]()},
		func(resolved []any) (*cycleA, error) {
			return &cycleA{b: resolved[0].(*cycleB)}, nil
		}))
	require.NoError(t, container.BindInjectableSingleton[*cycleB](coll,
		[]container.ServiceId{container.IDOf[*cycleA]()},
		func(resolved []any) (*cycleB, error) {
			return &cycleB{a: resolved[0].(*cycleA)}, nil
		}))

	_, err := coll.Build(envprovider.NewFake())
	require.Error(t, err)
	assert.True(t, container.IsCircularDependency(err))
}

func TestBuildDetectsMissingDependency(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindInjectableSingleton[*cycleA](coll,
		[]container.ServiceId{container.IDOf[*cycleB]()},
		func(resolved []any) (*cycleA, error) {
			return &cycleA{b: resolved[0].(*cycleB)}, nil
		}))

	_, err := coll.Build(envprovider.NewFake())
	require.Error(t, err)
	assert.True(t, container.IsNotFound(err))
}

func TestFactoryActivationCanResolveFromContext(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindSingleton[Clock](coll, func() (Clock, error) {
		return &fakeClock{t: 9}, nil
	}))
	require.NoError(t, container.BindFactory[Greeter](coll, container.Singleton, func(ctx *container.ResolveContext) (Greeter, error) {
		v, err := ctx.Resolve(container.IDOf[Clock]())
		if err != nil {
			return nil, err
		}
		return stampedGreeter{stamp: v.(Clock).Now()}, nil
	}))

	ct, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)

	g, err := container.Resolve[Greeter](ct, nil)
	require.NoError(t, err)
	assert.Equal(t, "stamp:9", g.Greet())
}

type stampedGreeter struct{ stamp int }

func (g stampedGreeter) Greet() string { return fmt.Sprintf("stamp:%d", g.stamp) }

func TestCollectionCannotBeBuiltTwice(t *testing.T) {
	coll := container.NewCollection()
	_, err := coll.Build(envprovider.NewFake())
	require.NoError(t, err)
	_, err = coll.Build(envprovider.NewFake())
	require.ErrorIs(t, err, container.ErrCollectionBuilt)
}
