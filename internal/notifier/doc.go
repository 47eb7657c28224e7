// Package notifier is the relay's outbound delivery pipeline.
//
// Notifications carry a channel name ("telegram", "email"), a target chat
// (optionally with a thread/topic) and send options. The service queues
// them, rate limits, retries with backoff and suppresses identical messages
// inside a short window, then hands each one to the sender registered for
// its channel.
//
// A recent-history ring is kept in memory for the status API.
package notifier
