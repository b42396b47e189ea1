// Package server implements the MCP session: handshake, tool discovery, and
// dispatch of tool calls to the query executor. One session processes one
// request to completion before reading the next; there is no internal
// parallelism.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	mcperrors "github.com/pgexec/postgres-mcp/pkg/errors"
	"github.com/pgexec/postgres-mcp/pkg/logging"
	"github.com/pgexec/postgres-mcp/pkg/protocol"
	"github.com/pgexec/postgres-mcp/pkg/query"
	"github.com/pgexec/postgres-mcp/pkg/transport"
)

// Executor runs one SQL statement and normalizes its result.
type Executor interface {
	Execute(ctx context.Context, sql string) (*query.Outcome, error)
}

// Server represents one MCP session over a transport.
type Server struct {
	framer   *transport.Framer
	registry *Registry
	executor Executor

	name    string
	version string

	// initialized flips once, when the handshake completes. No lock: the
	// session is strictly single-threaded.
	initialized bool

	logger logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithName sets the advertised server name.
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the advertised server version.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a session over the given transport.
func New(framer *transport.Framer, registry *Registry, executor Executor, options ...Option) *Server {
	s := &Server{
		framer:   framer,
		registry: registry,
		executor: executor,
		name:     "postgres-mcp",
		version:  "1.0.0",
		logger:   logging.New(nil, nil),
	}

	for _, option := range options {
		option(s)
	}

	s.logger = s.logger.WithFields(logging.String("session", uuid.NewString()))
	return s
}

// Serve runs the session until the input channel closes, the context is
// cancelled, or the output channel becomes unusable. Only the last case
// returns an error: losing the transport is the one unrecoverable failure.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		defer close(loopDone)
		return s.loop(gctx)
	})

	// Watcher: close the reader on cancellation to unblock a pending read.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = s.framer.Close()
			return gctx.Err()
		case <-loopDone:
			return nil
		}
	})

	return g.Wait()
}

// loop is the strictly sequential turn loop: receive, dispatch, respond.
func (s *Server) loop(ctx context.Context) error {
	s.logger.Info("session started", logging.String("server", s.name), logging.String("version", s.version))

	for {
		data, err := s.framer.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("input channel closed, session ended")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		resp := s.dispatch(ctx, data)
		if resp == nil {
			// Notification: nothing goes back.
			continue
		}

		out, err := protocol.Encode(resp)
		if err != nil {
			// A response we built failed to serialize. Answer with a plain
			// internal error rather than leaving the request unanswered.
			s.logger.Error("response encoding failed", logging.ErrorField(err))
			out, _ = protocol.Encode(protocol.NewErrorResponse(resp.ID, protocol.InternalError, "Internal error"))
		}
		if err := s.framer.Send(out); err != nil {
			s.logger.Error("output channel unusable, terminating", logging.ErrorField(err))
			return err
		}
	}
}

// dispatch maps raw message bytes to exactly one Response, or to nil for
// notifications. No failure escapes without producing a correlated
// response: an unanswered request would desynchronize the caller's
// turn-taking.
func (s *Server) dispatch(ctx context.Context, data []byte) (resp *protocol.Response) {
	req, err := protocol.Decode(data)
	if err != nil {
		perr := mcperrors.MalformedRequest(err)
		s.logger.Error("malformed request",
			logging.String("outcome", string(perr.Kind())),
			logging.ErrorField(err))
		return s.errorResponse(protocol.RecoverID(data), perr)
	}

	if req.IsNotification() {
		s.handleNotification(req)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			perr := mcperrors.Internal(fmt.Errorf("panic: %v", r))
			s.logger.Error("panic during dispatch",
				logging.String("method", req.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			resp = s.errorResponse(req.ID, perr)
		}
	}()

	result, err := s.route(ctx, req)
	if err != nil {
		perr := mcperrors.FromError(err)
		s.logger.Error("dispatch failed",
			logging.String("method", req.Method),
			logging.String("params", summarize(req.Params)),
			logging.String("outcome", string(perr.Kind())),
			logging.ErrorField(perr))
		return s.errorResponse(req.ID, perr)
	}

	s.logger.Info("dispatch complete",
		logging.String("method", req.Method),
		logging.String("params", summarize(req.Params)),
		logging.String("outcome", "ok"))

	out, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		perr := mcperrors.Internal(err)
		s.logger.Error("result serialization failed",
			logging.String("method", req.Method),
			logging.ErrorField(err))
		return s.errorResponse(req.ID, perr)
	}
	return out
}

// route matches a request to its handler.
func (s *Server) route(ctx context.Context, req *protocol.Request) (interface{}, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return s.handleInitialize(req)
	case protocol.MethodPing:
		return &protocol.PingResult{}, nil
	case protocol.MethodListTools:
		return &protocol.ListToolsResult{Tools: s.registry.List()}, nil
	case protocol.MethodCallTool:
		return s.handleCallTool(ctx, req)
	case protocol.MethodListResources:
		return &protocol.ListResourcesResult{Resources: []interface{}{}}, nil
	case protocol.MethodListPrompts:
		return &protocol.ListPromptsResult{Prompts: []interface{}{}}, nil
	default:
		return nil, mcperrors.UnknownMethod(req.Method)
	}
}

// handleInitialize negotiates protocol capabilities. The handshake happens
// exactly once; a second initialize is rejected without touching session
// state.
func (s *Server) handleInitialize(req *protocol.Request) (interface{}, error) {
	if s.initialized {
		return nil, mcperrors.AlreadyInitialized()
	}

	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, mcperrors.InvalidParameters("invalid initialize parameters: " + err.Error())
		}
	}

	if params.ClientInfo != nil {
		s.logger.Info("initializing session",
			logging.String("client", params.ClientInfo.Name),
			logging.String("client_version", params.ClientInfo.Version))
	} else {
		s.logger.Info("initializing session")
	}

	s.initialized = true

	return &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolRevision,
		Capabilities: protocol.Capabilities{
			Tools: &protocol.ToolsCapability{},
		},
		ServerInfo: protocol.ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

// handleCallTool validates and executes one tool invocation.
func (s *Server) handleCallTool(ctx context.Context, req *protocol.Request) (interface{}, error) {
	if !s.initialized {
		return nil, mcperrors.SessionNotInitialized(req.Method)
	}

	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperrors.InvalidParameters("invalid tools/call parameters: " + err.Error())
	}
	if params.Name == "" {
		return nil, mcperrors.MissingParameter("name")
	}

	descriptor, ok := s.registry.Lookup(params.Name)
	if !ok {
		return nil, mcperrors.UnknownTool(params.Name)
	}

	args, err := descriptor.ValidateArguments(params.Arguments)
	if err != nil {
		return nil, err
	}

	sql := args.String("sql")
	if args.Bool("explain") && isSelect(sql) {
		sql = "EXPLAIN ANALYZE " + sql
	}

	outcome, err := s.executor.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}

	return &protocol.CallToolResult{
		Content: []protocol.TextContent{protocol.NewTextContent(outcome.Render())},
	}, nil
}

// isSelect reports whether the statement starts a read query. EXPLAIN is
// only prefixed for these; other statements run as given.
func isSelect(sql string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(sql))
	return strings.HasPrefix(trimmed, "select") || strings.HasPrefix(trimmed, "with")
}

// handleNotification processes fire-and-forget messages.
func (s *Server) handleNotification(req *protocol.Request) {
	if req.Method == protocol.MethodInitialized {
		s.logger.Info("client reported ready")
		return
	}
	s.logger.Debug("ignoring notification", logging.String("method", req.Method))
}

// errorResponse converts a structured error into a correlated response.
func (s *Server) errorResponse(id interface{}, err *mcperrors.Error) *protocol.Response {
	return protocol.NewErrorResponse(id, err.Code(), err.Message())
}

// summaryLimit bounds the parameter excerpt written to the diagnostic
// channel per dispatched call.
const summaryLimit = 100

// summarize renders a truncated parameter excerpt for logging.
func summarize(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	if len(params) <= summaryLimit {
		return string(params)
	}
	return string(params[:summaryLimit]) + "..."
}
