package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	indexerrors "github.com/ralts/langindex/internal/errors"
)

// maxConsecutiveFailures is the shutdown threshold: five back-to-back
// malformed or unparseable frames ends the session rather than loop
// forever against a wedged client.
const maxConsecutiveFailures = 5

// Handler dispatches one decoded request and returns its result, or an
// error to be reported back as a JSON-RPC error object. Handlers run
// notifications (IsNotification() == true) for side effect only; any
// returned result is discarded.
type Handler func(req Request) (any, error)

// Session drives the read-dispatch-write loop over a Content-Length
// framed stream: read one message, dispatch it, write one response,
// repeat. There is exactly one long-lived editor connection per
// process, so there is no listener or multi-client fan-out here.
type Session struct {
	reader  *Reader
	writer  *Writer
	handler Handler
	logger  *slog.Logger

	consecutiveFailures int
}

// NewSession builds a Session reading from r, writing to w, dispatching
// decoded requests to handler.
func NewSession(r io.Reader, w io.Writer, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		reader:  NewReader(r),
		writer:  NewWriter(w),
		handler: handler,
		logger:  logger,
	}
}

// Run processes frames until the stream closes, a shutdown request is
// received, or five consecutive frames fail to parse.
func (s *Session) Run() error {
	for {
		payload, err := s.reader.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if s.onFailure() {
				return indexerrors.New(indexerrors.ErrCodeTooManyFailures,
					"too many consecutive malformed messages", err)
			}
			continue
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logger.Warn("discarding malformed message", "error", err)
			if s.onFailure() {
				return indexerrors.New(indexerrors.ErrCodeTooManyFailures,
					"too many consecutive malformed messages", err)
			}
			if !req.IsNotification() {
				_ = s.writer.WriteResponse(NewErrorResponse(req.ID, ErrCodeParseError, "malformed message"))
			}
			continue
		}
		s.consecutiveFailures = 0

		result, handlerErr := s.handler(req)
		if req.IsNotification() {
			if handlerErr != nil {
				s.logger.Warn("notification handler failed", "method", req.Method, "error", handlerErr)
			}
			if req.Method == MethodShutdown {
				return nil
			}
			continue
		}

		if handlerErr != nil {
			_ = s.writer.WriteResponse(NewErrorResponse(req.ID, codeForError(handlerErr), handlerErr.Error()))
			continue
		}
		if err := s.writer.WriteResponse(NewSuccessResponse(req.ID, result)); err != nil {
			return err
		}
	}
}

// onFailure records one parse failure and reports whether the
// consecutive-failure threshold has now been crossed.
func (s *Session) onFailure() bool {
	s.consecutiveFailures++
	return s.consecutiveFailures >= maxConsecutiveFailures
}

// codeForError maps a handler error to a JSON-RPC error code, using
// MethodNotFound for unrecognized methods and InternalError otherwise.
func codeForError(err error) int {
	var ie *indexerrors.IndexError
	if errors.As(err, &ie) && ie.Code == indexerrors.ErrCodeUnknownMethod {
		return ErrCodeMethodNotFound
	}
	return ErrCodeInternalError
}
