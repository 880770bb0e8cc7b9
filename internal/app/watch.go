package app

import (
	"context"
	"time"

	"ccptests/internal/config"
	"ccptests/pkg/logging"
)

// WatchEnvConfig reloads the environment configuration whenever its file changes and
// registers any new or changed underlay credentials. Long runs pick up nodes that
// another process adds while they execute. The returned function stops watching.
func (a *Application) WatchEnvConfig(ctx context.Context) (func(), error) {
	return watchEnvConfig(ctx, a.services, 0, nil)
}

func watchEnvConfig(ctx context.Context, s *Services, debounce time.Duration, notify func(error)) (func(), error) {
	w := config.NewWatcher(s.EnvConfig, debounce, func(_ *config.EnvironmentConfig, err error) {
		if err == nil {
			err = s.RefreshUnderlay()
		}
		if err != nil {
			logging.Warn("Bootstrap", "Ignoring environment configuration change: %v", err)
		} else {
			logging.Info("Bootstrap", "Reloaded environment configuration %s", s.EnvConfig.Path())
		}
		if notify != nil {
			notify(err)
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w.Stop, nil
}
