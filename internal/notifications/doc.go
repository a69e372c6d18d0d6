// Package notifications delivers run events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Per-event toggles let operators keep completion pings while muting
// error spam or vice versa. All pipeline code depends only on the
// Service interface.
package notifications
