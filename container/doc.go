// Package container implements the Service Descriptor & Binding Layer
// and the IoC Container: a dependency-injection registry keyed by
// service identity (a type tag plus an optional name), with singleton,
// scoped, and transient lifetimes, conditional activation, auto-wiring,
// and cycle detection.
//
// A typical composition root looks like:
//
//	coll := container.NewCollection()
//	container.BindSingleton[*Clock](coll, func() (*Clock, error) { return NewClock(), nil })
//	container.BindScoped[*RequestContext](coll, func() (*RequestContext, error) { return &RequestContext{}, nil })
//
//	c, err := coll.Build(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	clock, err := container.Resolve[*Clock](c, nil)
package container
