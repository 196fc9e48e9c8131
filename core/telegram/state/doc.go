// Package state stores per-user conversation sessions and serializes access to them.
// It knows nothing about the conversation itself: states are plain strings
// owned by the caller.
package state
