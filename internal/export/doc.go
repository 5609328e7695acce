// Package export saves rendered videos from the processing service to the
// local download directory, named after their session.
package export
