package generator

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("generator",
	fx.Provide(NewConfigFromApp),
	fx.Provide(New),
	fx.Invoke(registerLoop),
)

func registerLoop(lc fx.Lifecycle, g *Generator) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				g.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
