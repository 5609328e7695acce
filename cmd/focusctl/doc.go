// Command focusctl inspects and maintains the subject-focus session journal.
//
// Usage:
//
//	focusctl <command> [arguments]
//
// Commands:
//
//	health              Check that the processing service answers.
//	sessions [-open]    List journaled sessions, optionally only open ones.
//	renders [id]        List exported renders, optionally for one session.
//	close <id>          Close a session on the service and in the journal.
//	prune               Close every session the journal still has open,
//	                    for example after the client was killed.
//	verify <path>       Recompute the digest of an exported video and
//	                    compare it with the journal.
//
// Environment:
//
//	FOCUS_API_URL - Processing service base URL (default: http://localhost:8000)
//	DATABASE_DIR  - Path to the journal directory (default: ./data)
package main
