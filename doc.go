// Package hastewatch keeps module maps consistent with the directory trees
// they were built from and reports readiness over TCP.
//
// A Server owns one module map per configured index. On Run it constructs
// every initial map, binds the status port and starts a watcher on every
// root, all concurrently; only when all three succeed does it report
// ready. Each file change under a root is translated into a candidate file
// list for the owning index and handed to an incremental rebuild. While any
// rebuild is in flight the status port answers "updating".
//
// Example:
//
//	srv, err := hastewatch.New(indexes,
//		hastewatch.WithPort(5622),
//		hastewatch.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	srv.OnRebuilt(func(o hastewatch.RebuildOutcome) {
//		logger.Info().Str("index", o.Index).Int("changed", o.Changed).Msg("rebuilt")
//	})
//	return srv.Run(ctx)
//
// Clients poll readiness with a plain TCP connection: the server writes
// "starting", "updating" or "ready" and closes.
package hastewatch
