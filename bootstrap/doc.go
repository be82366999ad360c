// Package bootstrap runs a dwiflow task with the shared lifecycle: validated
// config, the global logger, registered components and hooks, and
// cancellation on SIGINT or SIGTERM.
//
//	app, err := bootstrap.NewApp(&cfg)
//	_ = app.RegisterComponent(monitorServer)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    _, err := executor.Execute(ctx)
//	    return err
//	})
package bootstrap
