/*
Package server exposes the session as a local HTTP control surface, for a
browser UI or scripts.

	GET    /health              client and processing service health
	GET    /api/state           session snapshot
	GET    /api/frame?width=N   displayed frame, optionally scaled down
	GET    /api/notifications   notifications newer than ?after=ID
	POST   /api/upload          multipart "file" field, opens a session
	POST   /api/click           {"x", "y", "element_width", "element_height"}
	POST   /api/key             {"key": "space" | "left" | "right" | ...}
	POST   /api/play            toggle playback
	POST   /api/reset           drop the tracked subject
	POST   /api/render          render and export the whole video
	DELETE /api/video           discard the session

Reset, render and remove run in the background and answer 202; their
outcome is reported through the notification feed. State conflicts answer
409 and processing service failures 502.
*/
package server
