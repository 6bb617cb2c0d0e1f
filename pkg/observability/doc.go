/*
Package observability turns session lifecycle hooks into Prometheus metrics and
structured audit logs.

	metrics := observability.NewMetrics()
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
	engine, _ := stepwise.New(dir, stepwise.WithLifecycleHooks(hooks))
	http.Handle("/metrics", metrics.Handler())
*/
package observability
