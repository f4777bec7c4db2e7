// Package queue publishes committed reward changes to a durable queue.
//
// The follower notifies an EventObserver after every persisted apply or
// undo. The observer turns the commit into one RewardEvent per affected
// participant and hands them to a QueuePublisher, keyed by participant so
// a consumer sees each participant's events in commit order.
//
// Events are notifications, not the source of truth: the checkpoint is.
// A failed publish is logged and counted but never stops the follower.
//
// All QueuePublisher implementations require Close to be called exactly once
// to release resources and flush in-flight messages.
package queue
