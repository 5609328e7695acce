// Package journal keeps a local SQLite record of processing sessions and
// exported renders.
//
// The processing service only forgets a session when it is closed or times
// out. The journal lets focusctl list sessions this client opened and close
// the ones a crashed viewer left behind. Every exported render is stored
// with its BLAKE2b digest and size.
package journal
