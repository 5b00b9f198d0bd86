// Package dedupe provides idempotency checks using a time-windowed, size-bounded
// cache of recently seen keys.
//
// The gateway uses one Cache per control plane instance to drop replayed
// agent.send requests and repeated HTTP Idempotency-Key headers:
//
//	cache := dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize)
//	defer cache.Close()
//
//	if cache.Check(key) {
//	    // duplicate within the window
//	}
package dedupe
