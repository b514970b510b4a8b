// Package ledapp is the app host of the Indy Sim LED display.
//
// The display itself is driven by the sketch, which receives race updates
// from the backend through arduino-router. The app side only has to stay
// alive with a registered loop, so the host provides:
//   1. Loop System - invokes every registered loop again as soon as it returns
//   2. Backoff System - failing or panicking loops wait along a prime sequence (1s..59s)
//   3. Heartbeat System - periodic liveness record with per-loop counters
//   4. Status - service info, loop stats and recent logs as one checksummed document
//
// Typical use mirrors App.run(user_loop=loop):
//
//	app, _ := ledapp.New(ledapp.Config{Name: "indy-sim-led-display", Version: "1.0.0", Heartbeat: update.Slow})
//	_ = app.RegisterUserLoop(idle.Loop)
//	_ = app.Run(ctx)
package ledapp
