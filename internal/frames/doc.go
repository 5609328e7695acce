// Package frames manages decoded preview frames received from the
// processing service.
//
// A Manager hands out a Handle for every acquired frame and releases each
// handle exactly once. A Display holds the frame currently shown; swapping
// in a new frame releases the old one, so the number of live handles stays
// bounded no matter how long playback runs.
package frames
