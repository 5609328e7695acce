// Package logging provides a simple leveled logging interface for the
// subject-focus client.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (stale frame discards, retries)
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. While the interactive viewer holds the
// terminal in raw mode, SetRawTerminal(true) makes every line end in CRLF.
package logging
