// Package mediatypes provides media type detection for files handed to the
// processing service.
//
// The service only accepts video uploads, and the client must reject
// anything else before a network call is attempted:
//
//	ct := mediatypes.DetectContentType(path, head)
//	if !mediatypes.IsVideo(ct) {
//	    // reject locally
//	}
//
// Detection prefers the file extension (VideoExtensions / MimeTypes) and
// falls back to content sniffing for unknown extensions.
package mediatypes
