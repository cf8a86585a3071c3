// Package events defines the domain event union and the in-process
// publish/subscribe bus that decouples the coordination core from its
// observers.
//
// Events are immutable value types; SubjectID and CategoryOf derive the memo
// association and subsystem grouping instead of storing them on each variant.
// The Bus delivers synchronously in registration order and prunes
// subscriptions whose Owner has been closed, lazily, on a time interval or a
// size threshold, whichever trips first.
package events
