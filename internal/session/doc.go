/*
Package session implements the client-side state machine for one video on
the processing service.

# States

	Empty -> Uploading -> Ready <-> {Stepping, Playing, Selecting, Rendering}

The state is derived from a handful of flags (see Snapshot). Teardown
through Remove, Close or an expired session returns to Empty.

# Staleness

Many requests can be in flight at once: an interactive step, playback
fetches, several selections and a render. Each response is checked before
it is applied:

  - every teardown bumps a generation counter, and responses from an older
    generation are dropped
  - every display fetch carries a sequence number, and a frame never
    replaces a newer one
  - playback fetches also carry the epoch of the playback run that issued
    them, so stopping playback discards frames still in flight
  - selections carry their own sequence number, and a reset discards every
    selection issued before it

A discarded frame is released immediately.

# Failures

Interactive operations (upload, step, reset, render) report failures
through the Notifier. Playback fetch failures are only logged. A 404/410
from the service means the server-side session is gone; local state is
torn down without calling close and the user is told the session expired.
*/
package session
