// Package slidingwindow implements a read-ahead window that fetches records
// concurrently while handing them to a single consumer strictly in height
// order.
//
// Terminology
//   - Lowest: the next height the consumer will ask for. Everything below it
//     has been handed out.
//   - Highest: the highest height known to exist at the source (its tip).
//     The active window is [Lowest..min(Highest, Lowest+window-1)].
//
// Main components
//   - State: thread-safe watermarks, fetched-but-unconsumed records, in-flight
//     heights and per-height failure counts. Every reset bumps an epoch so
//     fetches started before a rewind can never leak stale records.
//   - Manager: the scheduler. Run dispatches fetches for unclaimed heights in
//     the window under a semaphore. Get serves the consumer: it takes a buffered
//     record, waits for an in-flight one, or fetches directly. Manager
//     implements source.Source so it can sit between the follower and any
//     concrete source.
//   - Subscriber: feeds tip heights into the manager (see subpackage).
//
// Failure handling
//
// Prefetch failures are never fatal. A height that fails maxFailures times is
// no longer prefetched and the consumer's direct fetch surfaces the error.
//
// Usage
//  1. Construct a State with the consumer's next height.
//  2. Construct a Manager with NewManager(logger, state, src, concurrency, window, maxFailures).
//  3. Start Run(ctx) and a Subscriber in goroutines.
//  4. Read records with Get(ctx, height).
package slidingwindow
