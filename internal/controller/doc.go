// Package controller translates user input into session operations.
//
// Keyboard: space toggles playback; the left and right arrows step one
// frame while paused; r resets the target, v renders, x removes the video
// and q quits. Clicks select the subject under the pointer.
package controller
