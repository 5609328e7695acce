// Package playback provides the fixed-cadence clock that advances frames
// while a video is playing.
//
// A Task is started with a Ticker and a tick callback, and stopped exactly
// once. After Stop returns no new tick is delivered, but a tick already
// executing runs to completion, so the callback must check for itself that
// the playback it belongs to is still the active one.
package playback
