/*
Package apiclient is a typed binding to the remote subject-tracking service.

The service owns all heavy processing: it decodes the uploaded video, runs
detection and tracking, composites the blur and renders the final file. The
client only names a session (the video id returned by Upload) and a frame
index.

# Endpoints

	POST /upload    multipart file            -> {video_id, meta}
	GET  /frame     query parameters           -> image bytes
	POST /select    multipart x, y, frame      -> {ok, track_id?, message?}
	POST /reset     multipart video_id         -> {ok}
	POST /render    multipart render options   -> {ok, output_path?, frames_processed?}
	GET  /download  query video_id             -> video bytes
	POST /close     multipart video_id         -> {ok}
	GET  /health                               -> {ok}

# Errors

Three outcomes are kept apart:

  - *ValidationError: bad local input, reported before any request
  - *TransportError: non-2xx status or network failure
  - negative results: a 2xx response with ok=false, returned as a value

IsUnknownSession reports a 404/410 for a session the service has dropped.
IsRetriable reports failures worth repeating.

# Retries

Frame, select, reset, download and health are retried with bounded
exponential backoff (see Policy). Upload, render and close are sent once.
Render is not bounded by the client timeout; callers pass a context with
their own deadline.
*/
package apiclient
