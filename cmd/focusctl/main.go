package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/export"
	"subject-focus/internal/journal"
)

const (
	// Default timeout for a single command
	defaultTimeout = 30 * time.Second
	defaultAPIURL  = "http://localhost:8000"
	// Default journal directory path
	defaultDatabaseDir = "./data"
)

// store is the journal surface focusctl uses. *journal.Journal implements it.
type store interface {
	Sessions(ctx context.Context) ([]journal.SessionRecord, error)
	OpenSessions(ctx context.Context) ([]journal.SessionRecord, error)
	Renders(ctx context.Context, sessionID string) ([]journal.RenderRecord, error)
	SessionClosed(ctx context.Context, id, reason string) error
}

// service is the processing service surface focusctl uses.
type service interface {
	Health(ctx context.Context) (*apiclient.OKResponse, error)
	Close(ctx context.Context, videoID string) (*apiclient.OKResponse, error)
}

type cli struct {
	store   store
	service service
	out     io.Writer
	errOut  io.Writer
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stdout)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	apiURL := envOr("FOCUS_API_URL", defaultAPIURL)
	client, err := apiclient.New(apiclient.Config{BaseURL: apiURL, Timeout: 10 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	c := &cli{service: client, out: os.Stdout, errOut: os.Stderr}

	command := args[0]
	if needsJournal(command) {
		databaseDir := envOr("DATABASE_DIR", defaultDatabaseDir)
		jr, err := journal.New(ctx, filepath.Join(databaseDir, journal.FileName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to open journal: %v\n", err)
			fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
			return 1
		}
		defer func() {
			if err := jr.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close journal: %v\n", err)
			}
		}()
		c.store = jr
	}

	return c.run(ctx, command, args[1:])
}

func needsJournal(command string) bool {
	switch command {
	case "sessions", "renders", "close", "prune", "verify":
		return true
	}
	return false
}

// run executes one command and returns the process exit code.
func (c *cli) run(ctx context.Context, command string, args []string) int {
	var err error
	switch command {
	case "health":
		err = c.health(ctx)
	case "sessions":
		err = c.sessions(ctx, len(args) > 0 && args[0] == "-open")
	case "renders":
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		err = c.renders(ctx, id)
	case "close":
		if len(args) != 1 {
			err = errors.New("usage: focusctl close <session-id>")
			break
		}
		err = c.closeSession(ctx, args[0])
	case "prune":
		err = c.prune(ctx)
	case "verify":
		if len(args) != 1 {
			err = errors.New("usage: focusctl verify <path>")
			break
		}
		err = c.verify(ctx, args[0])
	case "help", "-h", "--help":
		printUsage(c.out)
		return 0
	default:
		fmt.Fprintf(c.errOut, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(c.errOut)
		return 2
	}

	if err != nil {
		fmt.Fprintf(c.errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

// sanitizeCommand replaces anything but [a-zA-Z0-9_-] with '_' before a
// command is echoed back.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Subject Focus journal maintenance")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: focusctl <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  health            - Check the processing service")
	fmt.Fprintln(w, "  sessions [-open]  - List journaled sessions")
	fmt.Fprintln(w, "  renders [id]      - List exported renders")
	fmt.Fprintln(w, "  close <id>        - Close one session")
	fmt.Fprintln(w, "  prune             - Close every session left open")
	fmt.Fprintln(w, "  verify <path>     - Check an exported video against the journal")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  FOCUS_API_URL - Processing service URL (default: %s)\n", defaultAPIURL)
	fmt.Fprintf(w, "  DATABASE_DIR  - Path to journal directory (default: %s)\n", defaultDatabaseDir)
}

func (c *cli) health(ctx context.Context) error {
	resp, err := c.service.Health(ctx)
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.New("service reported not ok")
	}
	fmt.Fprintln(c.out, "Status: processing service is healthy")
	return nil
}

func (c *cli) sessions(ctx context.Context, openOnly bool) error {
	list := c.store.Sessions
	if openOnly {
		list = c.store.OpenSessions
	}
	records, err := list(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tFRAMES\tSIZE\tOPENED\tSTATUS")
	for _, r := range records {
		status := "open"
		if r.ClosedAt != nil {
			status = r.CloseReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\t%s\t%s\n",
			r.ID, r.FileName, r.FrameCount, r.Width, r.Height,
			r.OpenedAt.Local().Format(time.DateTime), status)
	}
	return tw.Flush()
}

func (c *cli) renders(ctx context.Context, sessionID string) error {
	records, err := c.store.Renders(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No renders.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tFRAMES\tBYTES\tCREATED\tPATH")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			r.SessionID, r.FramesProcessed, r.SizeBytes,
			r.CreatedAt.Local().Format(time.DateTime), r.OutputPath)
	}
	return tw.Flush()
}

// closeRemote closes a session on the service. A session the service no
// longer knows counts as closed.
func (c *cli) closeRemote(ctx context.Context, id string) error {
	resp, err := c.service.Close(ctx, id)
	if err != nil {
		if apiclient.IsUnknownSession(err) {
			return nil
		}
		return err
	}
	if !resp.OK {
		return fmt.Errorf("service refused to close %s", id)
	}
	return nil
}

func (c *cli) closeSession(ctx context.Context, id string) error {
	if err := c.closeRemote(ctx, id); err != nil {
		return err
	}
	if err := c.store.SessionClosed(ctx, id, "closed"); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Closed %s\n", id)
	return nil
}

func (c *cli) prune(ctx context.Context) error {
	open, err := c.store.OpenSessions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Fprintln(c.out, "Nothing to prune.")
		return nil
	}

	var failed int
	for _, r := range open {
		if err := c.closeRemote(ctx, r.ID); err != nil {
			fmt.Fprintf(c.errOut, "Warning: %s: %v\n", r.ID, err)
			failed++
			continue
		}
		if err := c.store.SessionClosed(ctx, r.ID, "pruned"); err != nil {
			fmt.Fprintf(c.errOut, "Warning: %s: %v\n", r.ID, err)
			failed++
			continue
		}
		fmt.Fprintf(c.out, "Pruned %s (%s)\n", r.ID, r.FileName)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions could not be pruned", failed, len(open))
	}
	return nil
}

func (c *cli) verify(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	digest, err := export.Verify(abs)
	if err != nil {
		return err
	}

	records, err := c.store.Renders(ctx, "")
	if err != nil {
		return err
	}
	var recorded []journal.RenderRecord
	for _, r := range records {
		if r.OutputPath == abs {
			recorded = append(recorded, r)
		}
	}
	if len(recorded) == 0 {
		return fmt.Errorf("%s is not in the journal (digest %s)", path, digest)
	}
	// A session rendered twice overwrites its file; any matching record
	// will do.
	for _, r := range recorded {
		if r.Digest == digest {
			fmt.Fprintf(c.out, "OK %s (session %s, %d frames)\n", path, r.SessionID, r.FramesProcessed)
			return nil
		}
	}
	return fmt.Errorf("%s does not match the journal: digest %s", path, digest)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
