package controller

import (
	"context"
	"errors"
	"sync"

	"subject-focus/internal/frames"
	"subject-focus/internal/logging"
	"subject-focus/internal/session"
)

// Session is the set of operations the controller dispatches to.
// *session.Session implements it.
type Session interface {
	Snapshot() session.Snapshot
	DisplayedFrame() (*frames.Frame, bool)
	Step(ctx context.Context, delta int) error
	TogglePlay() (bool, error)
	Select(ctx context.Context, x, y int) (*session.SelectResult, error)
	Reset(ctx context.Context) error
	BeginRender() (session.RenderFunc, error)
	Remove(ctx context.Context) error
}

// Click is a pointer click in the coordinates of the element showing the
// frame, which may be scaled relative to the frame itself.
type Click struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	ElementWidth  float64 `json:"element_width"`
	ElementHeight float64 `json:"element_height"`
}

// Controller maps keys and clicks to session operations. Operations that
// reach the network run in the background so input is never blocked.
type Controller struct {
	session Session
	ctx     context.Context

	wg       sync.WaitGroup
	quitOnce sync.Once
	quit     chan struct{}
}

// New creates a Controller. Dispatched operations use ctx.
func New(ctx context.Context, s Session) *Controller {
	return &Controller{
		session: s,
		ctx:     ctx,
		quit:    make(chan struct{}),
	}
}

// HandleKey dispatches one key. It reports whether the key triggered an
// operation. Without a session only quit is active; the arrow keys are
// ignored during playback.
func (c *Controller) HandleKey(k Key) bool {
	if k == KeyQuit {
		c.quitOnce.Do(func() { close(c.quit) })
		return true
	}

	snap := c.session.Snapshot()
	if snap.SessionID == "" {
		return false
	}

	switch k {
	case KeySpace:
		playing, err := c.session.TogglePlay()
		if err != nil {
			report("toggle play", err)
			return false
		}
		logging.Debug("Playback %s", map[bool]string{true: "started", false: "paused"}[playing])
		return true
	case KeyLeft, KeyRight:
		if snap.IsPlaying {
			return false
		}
		delta := 1
		if k == KeyLeft {
			delta = -1
		}
		c.dispatch("step", func(ctx context.Context) error {
			return c.session.Step(ctx, delta)
		})
		return true
	case KeyReset:
		c.dispatch("reset", c.session.Reset)
		return true
	case KeyRender:
		if err := c.StartRender(); err != nil {
			report("render", err)
			return false
		}
		return true
	case KeyRemove:
		c.dispatch("remove", c.session.Remove)
		return true
	}
	return false
}

// HandleClick selects the subject under a click. The click is scaled into
// the pixel space of the displayed frame; it is ignored when no frame is
// shown or it falls outside the element.
func (c *Controller) HandleClick(click Click) bool {
	frame, ok := c.session.DisplayedFrame()
	if !ok {
		return false
	}
	x, y, ok := frame.ToFramePixels(click.X, click.Y, click.ElementWidth, click.ElementHeight)
	if !ok {
		logging.Debug("Click (%.0f, %.0f) outside %.0fx%.0f element ignored",
			click.X, click.Y, click.ElementWidth, click.ElementHeight)
		return false
	}

	c.dispatch("select", func(ctx context.Context) error {
		_, err := c.session.Select(ctx, x, y)
		return err
	})
	return true
}

// StartRender checks the render preconditions synchronously and runs the
// render in the background. The session has already told the user why a
// render could not start when an error is returned.
func (c *Controller) StartRender() error {
	if c.session.Snapshot().SessionID == "" {
		return session.ErrNoSession
	}
	run, err := c.session.BeginRender()
	if err != nil {
		return err
	}
	c.dispatch("render", func(ctx context.Context) error {
		_, err := run(ctx)
		return err
	})
	return nil
}

// Quit is closed once the quit key has been pressed.
func (c *Controller) Quit() <-chan struct{} {
	return c.quit
}

// Wait blocks until every dispatched operation has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) dispatch(name string, op func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := op(c.ctx); err != nil {
			report(name, err)
		}
	}()
}

// report logs a failed operation. The session has already notified the
// user about failures worth telling; precondition errors are routine.
func report(name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.Debug("%s: %v", name, err)
}
