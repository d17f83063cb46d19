package qr

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/markercast/engine/internal/camera"
	"github.com/markercast/engine/pkg/core"
)

// CameraOwner names the scanner when it holds the camera.
const CameraOwner = "qr-scanner"

// Result is an accepted scan.
type Result struct {
	Raw     string
	Payload core.QRPayload
}

// Scanner polls camera frames for a valid QR payload. Each frame is one
// decode attempt; frames arriving while a decode runs are dropped.
type Scanner struct {
	arbiter *camera.Arbiter
	log     *slog.Logger
	decode  func(image.Image) (string, error)
	onError func(error)

	mu      sync.Mutex
	stream  *camera.Stream
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	closed  bool
}

// NewScanner creates a scanner using the shared camera.
func NewScanner(arbiter *camera.Arbiter, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{arbiter: arbiter, log: log, decode: DecodeImage}
}

// OnError registers fn for payloads that fail validation. Scanning continues
// after such errors.
func (s *Scanner) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Scan acquires the camera and blocks until a valid payload is decoded, the
// scanner is closed or ctx ends. The camera is released before returning.
// A denied camera closes the scanner.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, core.ErrStreamClosed
	}
	if s.stream != nil {
		s.mu.Unlock()
		return Result{}, errors.New("scan already running")
	}
	stream, err := s.arbiter.Acquire(ctx, CameraOwner)
	if err != nil {
		s.lastErr = err
		var perr *core.PermissionError
		if errors.As(err, &perr) {
			s.closed = true
		}
		s.mu.Unlock()
		return Result{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stream, s.cancel, s.done = stream, cancel, done
	onError := s.onError
	s.mu.Unlock()

	defer func() {
		cancel()
		s.arbiter.Release(stream)
		s.mu.Lock()
		if s.stream == stream {
			s.stream, s.cancel = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case frame, ok := <-stream.Frames():
			if !ok {
				return Result{}, core.ErrStreamClosed
			}
			raw, err := s.decode(frame.Image)
			if err != nil {
				if !errors.Is(err, ErrNoCode) {
					s.log.Warn("failed to process video frame", "component", "qr", "error", err)
				}
				continue
			}
			p, err := Validate(raw)
			if err != nil {
				s.setErr(err)
				s.log.Info("rejected qr payload", "component", "qr", "error", err)
				if onError != nil {
					onError(err)
				}
				continue
			}
			s.setErr(nil)
			return Result{Raw: raw, Payload: p}, nil
		}
	}
}

func (s *Scanner) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the most recent rejection or camera error.
func (s *Scanner) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close cancels a running scan and releases the camera before returning.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.closed = true
	stream, cancel, done := s.stream, s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		s.arbiter.Release(stream)
	}
	if done != nil {
		<-done
	}
}
