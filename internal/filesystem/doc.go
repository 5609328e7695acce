/*
Package filesystem provides filesystem operations with automatic retry logic
for transient errors.

# Purpose

Rendered videos are written into a download directory that may live on a
network mount. This package wraps the operations the exporter needs
(os.MkdirAll, os.CreateTemp, os.Rename) with retries for errors that clear
up on their own: ESTALE (stale NFS file handle), EBUSY, EAGAIN and EINTR.

# Usage

	if err := filesystem.MkdirAllWithRetry(dir, 0755, filesystem.DefaultRetryConfig()); err != nil {
	    return err
	}

	tmp, err := filesystem.CreateTempWithRetry(dir, ".export-*", filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}

	err = filesystem.RenameWithRetry(tmp.Name(), finalPath, filesystem.DefaultRetryConfig())

# Retry Behavior

The retry logic implements exponential backoff with the following defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately without retry attempts. Retries are
counted in the subject_focus_filesystem_retry_* metrics.
*/
package filesystem
