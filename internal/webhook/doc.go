// Package webhook receives Telegram updates over HTTP and hands each one to
// the relay.
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Secret header compared in constant time (401 on mismatch)
//  3. Relay configuration checked (500 when incomplete)
//  4. Body size checked (413 if too large)
//  5. Body decoded as one update (500 if malformed)
//  6. 200 {"ok":true} returned, then the update is handled in the background
//
// Telegram retries a webhook delivery it considers failed, so the response
// never waits on the trigger or status fan-out.
//
// # Other Routes
//
// GET on the health path returns 200 {"ok":true}. Every other path or
// method returns 404.
//
// # Example Usage
//
//	cfg, err := webhook.FromGlobalConfig(globalCfg.Webhook)
//	if err != nil {
//		return err
//	}
//	server := webhook.New(cfg, relay, globalCfg.CheckRelay, logger)
//	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
//		return err
//	}
package webhook
