// package bachui serves bacss sessions over HTTP.
package bachui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.brendoncarroll.net/exp/slices2"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bacss"
	"nsbaci.org/nsbaci/bvm"
	"nsbaci.org/nsbaci/pcode"
)

// MIMEImage is the content type of an encoded image.
const MIMEImage = "application/cbor"

func Serve(ctx context.Context, l net.Listener, sys *bacss.System) error {
	return New(sys).Serve(ctx, l)
}

type Server struct {
	sys   *bacss.System
	app   *fiber.App
	bgCtx context.Context
}

func New(sys *bacss.System) *Server {
	s := &Server{sys: sys, bgCtx: context.Background()}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	v1 := app.Group("/v1")
	v1.Get("/sessions", s.listSessions)
	v1.Post("/sessions", s.createSession)
	v1.Get("/sessions/:sessionID", s.session)
	v1.Delete("/sessions/:sessionID", s.dropSession)
	v1.Post("/sessions/:sessionID/step", s.step)
	v1.Post("/sessions/:sessionID/run", s.run)
	v1.Post("/sessions/:sessionID/pause", s.pause)
	v1.Post("/sessions/:sessionID/input", s.input)
	v1.Post("/sessions/:sessionID/reset", s.reset)
	v1.Get("/sessions/:sessionID/history", s.history)
	v1.Get("/sessions/:sessionID/ws", websocket.New(s.handleWS))
	s.app = app
	return s
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.bgCtx = ctx
	logctx.Infof(ctx, "serving on %v", l.Addr())
	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()
	return s.app.Listener(l)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

type sessionInfo struct {
	ID          bacss.SessionID    `json:"id"`
	Fingerprint nsbaci.Fingerprint `json:"fingerprint"`
	State       bacrt.State        `json:"state"`
	Steps       int                `json:"steps"`
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	sessions, err := s.sys.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(slices2.Map(sessions, func(sess *bacss.Session) sessionInfo {
		snap := sess.Snapshot()
		return sessionInfo{
			ID:          sess.ID(),
			Fingerprint: sess.Fingerprint(),
			State:       snap.State,
			Steps:       snap.Steps,
		}
	}))
}

// createSession accepts a listing, or an encoded image when the content type is MIMEImage.
func (s *Server) createSession(c *fiber.Ctx) error {
	ctx := c.Context()
	var img *bacimg.Image
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), MIMEImage) {
		var err error
		if img, err = bacimg.Decode(c.Body()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	} else {
		l, err := pcode.Parse(bytes.NewReader(c.Body()))
		if err != nil {
			return err
		}
		img = bacimg.FromListing(l)
	}
	sess, err := s.sys.Create(ctx, img)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
}

func (s *Server) session(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Snapshot())
}

func (s *Server) dropSession(c *fiber.Ctx) error {
	sid, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := s.sys.Drop(c.Context(), sid); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// stepResponse is the body returned by every command.
type stepResponse struct {
	Result   *bacrt.Result          `json:"result,omitempty"`
	Snapshot *bacss.SessionSnapshot `json:"snapshot,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) step(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	ctx := c.Context()
	var res bacrt.Result
	if tid := c.Query("thread"); tid != "" {
		n, err := strconv.ParseUint(tid, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "thread must be an integer")
		}
		res, err = sess.StepThread(ctx, bvm.ThreadID(n))
		if err != nil {
			return err
		}
	} else {
		if res, err = sess.Step(ctx); err != nil {
			return err
		}
	}
	return c.JSON(respond(sess, res))
}

func (s *Server) run(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	maxSteps := c.QueryInt("max", 0)
	if maxSteps < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "max cannot be negative")
	}
	res, err := sess.Run(c.Context(), maxSteps)
	if err != nil {
		return err
	}
	return c.JSON(respond(sess, res))
}

// pause stops a run in progress on the session.
// It does not wait for the run to return.
func (s *Server) pause(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	sess.Pause()
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) input(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	if err := sess.Input(c.Context(), strings.TrimRight(string(c.Body()), "\r\n")); err != nil {
		return err
	}
	snap := sess.Snapshot()
	return c.JSON(stepResponse{Snapshot: &snap})
}

func (s *Server) reset(c *fiber.Ctx) error {
	sess, err := s.getSession(c)
	if err != nil {
		return err
	}
	if err := sess.Reset(c.Context()); err != nil {
		return err
	}
	snap := sess.Snapshot()
	return c.JSON(stepResponse{Snapshot: &snap})
}

func (s *Server) history(c *fiber.Ctx) error {
	sid, err := sessionID(c)
	if err != nil {
		return err
	}
	runs, err := s.sys.History(c.Context(), sid)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []bacss.RunInfo{}
	}
	return c.JSON(runs)
}

func (s *Server) getSession(c *fiber.Ctx) (*bacss.Session, error) {
	sid, err := sessionID(c)
	if err != nil {
		return nil, err
	}
	return s.sys.Get(c.Context(), sid)
}

func sessionID(c *fiber.Ctx) (bacss.SessionID, error) {
	n, err := strconv.ParseInt(c.Params("sessionID"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "session id must be an integer")
	}
	return bacss.SessionID(n), nil
}

func respond(sess *bacss.Session, res bacrt.Result) stepResponse {
	snap := sess.Snapshot()
	return stepResponse{Result: &res, Snapshot: &snap}
}

// errorHandler writes err as a JSON body with a status code chosen by its type.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	var pe *pcode.ParseError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.As(err, &bacss.ErrSessionNotFound{}):
		code = fiber.StatusNotFound
	case errors.As(err, &bacss.ErrSessionClosed{}):
		code = fiber.StatusGone
	case errors.As(err, &pe):
		code = fiber.StatusBadRequest
	case errors.As(err, new(*pcode.OperandError)):
		code = fiber.StatusBadRequest
	}
	if code == fiber.StatusInternalServerError {
		logctx.Error(c.Context(), "handling request", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(stepResponse{Error: err.Error()})
}

type wsCommand struct {
	Cmd string          `json:"cmd"`
	Arg json.RawMessage `json:"arg,omitempty"`
}

// maxPending is the number of websocket commands which may wait behind a running one.
const maxPending = 16

func (s *Server) handleWS(c *websocket.Conn) {
	ctx := s.bgCtx
	sid, err := strconv.ParseInt(c.Params("sessionID"), 10, 64)
	if err != nil {
		return
	}
	logctx.Info(ctx, "started websocket", zap.Int64("session", sid))
	defer logctx.Info(ctx, "closing websocket", zap.Int64("session", sid))

	if err := func() error {
		ctx, cf := context.WithCancel(ctx)
		defer cf()
		sess, err := s.sys.Get(ctx, bacss.SessionID(sid))
		if err != nil {
			return c.WriteJSON(stepResponse{Error: err.Error()})
		}
		var mu sync.Mutex
		write := func(resp stepResponse) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteJSON(resp)
		}
		cmds := make(chan wsCommand, maxPending)
		eg, ctx := errgroup.WithContext(ctx)
		// reads commands; pause is handled here so it can interrupt a run.
		eg.Go(func() error {
			defer close(cmds)
			defer cf()
			for {
				var cmd wsCommand
				if err := c.ReadJSON(&cmd); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return err
				}
				if cmd.Cmd == "pause" {
					sess.Pause()
					if err := write(stepResponse{}); err != nil {
						return err
					}
					continue
				}
				select {
				case cmds <- cmd:
				default:
					if err := write(stepResponse{Error: "too many pending commands"}); err != nil {
						return err
					}
				}
			}
		})
		// executes commands in order.
		eg.Go(func() error {
			for cmd := range cmds {
				resp := s.doCommand(ctx, sess, cmd)
				if ctx.Err() != nil {
					return nil
				}
				if err := write(resp); err != nil {
					return err
				}
			}
			return nil
		})
		return eg.Wait()
	}(); err != nil {
		logctx.Error(ctx, "handling websocket", zap.Error(err))
	}
}

func (s *Server) doCommand(ctx context.Context, sess *bacss.Session, cmd wsCommand) stepResponse {
	var res bacrt.Result
	var err error
	switch cmd.Cmd {
	case "step":
		res, err = sess.Step(ctx)
	case "run":
		var maxSteps int
		if len(cmd.Arg) > 0 {
			if err := json.Unmarshal(cmd.Arg, &maxSteps); err != nil {
				return stepResponse{Error: "run takes an integer"}
			}
		}
		res, err = sess.Run(ctx, maxSteps)
	case "input":
		var text string
		if err := json.Unmarshal(cmd.Arg, &text); err != nil {
			return stepResponse{Error: "input takes a string"}
		}
		if err := sess.Input(ctx, text); err != nil {
			return stepResponse{Error: err.Error()}
		}
		snap := sess.Snapshot()
		return stepResponse{Snapshot: &snap}
	case "reset":
		if err := sess.Reset(ctx); err != nil {
			return stepResponse{Error: err.Error()}
		}
		snap := sess.Snapshot()
		return stepResponse{Snapshot: &snap}
	default:
		return stepResponse{Error: "unknown command " + strconv.Quote(cmd.Cmd)}
	}
	if err != nil {
		return stepResponse{Error: err.Error()}
	}
	return respond(sess, res)
}
