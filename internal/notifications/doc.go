// Package notifications delivers daemon events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-event toggles let users mute chatty milestones while keeping
// error alerts on.
//
// Extend this package if you need alternative transports; daemon code
// depends only on the simple Service interface.
package notifications
