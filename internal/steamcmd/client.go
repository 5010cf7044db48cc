package steamcmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"steamfetch/internal/faults"
	"steamfetch/internal/logging"
)

// Client launches SteamCMD runs. One Client is safe for reuse across jobs;
// each Start call produces an independent Handle.
type Client struct {
	script  string
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// New constructs a client around the steamcmd.sh launcher script.
// timeoutSeconds bounds the wall clock of one attempt; graceSeconds is the
// window between SIGTERM and SIGKILL during termination.
func New(script string, timeoutSeconds, graceSeconds int, logger *slog.Logger) (*Client, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("steamcmd script required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		script:  script,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		grace:   time.Duration(graceSeconds) * time.Second,
		logger:  logging.WithComponent(logger, "steamcmd"),
	}, nil
}

// Handle is one running SteamCMD process. Wait must be called exactly once;
// it returns after the process exits and all output has been consumed.
type Handle struct {
	cmd   *exec.Cmd
	grace time.Duration

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	done    chan struct{}
	waitErr error

	stateMu   sync.Mutex
	timedOut  bool
	cancelled bool
	killOnce  sync.Once
}

// Start launches SteamCMD for the request and streams parsed events to emit
// as they arrive. Password and pre-supplied guard-code prompts are satisfied
// internally over stdin; only prompts the caller must answer are emitted.
func (c *Client) Start(ctx context.Context, req Request, emit func(Event)) (*Handle, error) {
	if err := req.validate(); err != nil {
		return nil, faults.Wrap(faults.InvalidIdentifier, "steamcmd start", err)
	}
	if err := os.MkdirAll(req.InstallDir, 0o755); err != nil {
		return nil, fmt.Errorf("create install directory: %w", err)
	}

	cmd := exec.Command(c.script, req.args()...) //nolint:gosec
	// Own process group so termination reaches the launcher's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, faults.Wrap(faults.DependencyMissing, "start steamcmd", err)
	}

	handle := &Handle{
		cmd:   cmd,
		grace: c.grace,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	parser := NewParser()
	var parserMu sync.Mutex
	forward := func(line string) {
		parserMu.Lock()
		event, ok := parser.ParseLine(line)
		parserMu.Unlock()
		if !ok {
			return
		}
		if event.Kind == EventAuthPrompt && c.answerPrompt(handle, req, event.Prompt) {
			return
		}
		if emit != nil {
			emit(event)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdout, forward, &wg)
	go scanLines(stderr, forward, &wg)

	timeoutCtx := ctx
	var cancelTimeout context.CancelFunc = func() {}
	if c.timeout > 0 {
		timeoutCtx, cancelTimeout = context.WithTimeout(ctx, c.timeout)
	}

	go func() {
		select {
		case <-timeoutCtx.Done():
			if ctx.Err() != nil {
				handle.markCancelled()
			} else {
				handle.markTimedOut()
			}
			handle.terminate()
		case <-handle.done:
		}
	}()

	go func() {
		wg.Wait()
		handle.waitErr = cmd.Wait()
		cancelTimeout()
		close(handle.done)
	}()

	c.logger.Info("steamcmd started",
		logging.Int64("app_id", req.AppID),
		logging.Bool("anonymous", req.Anonymous),
		logging.String("install_dir", req.InstallDir))

	return handle, nil
}

// answerPrompt satisfies prompts the request already carries answers for.
// Returns true when the prompt was handled and should not surface.
func (c *Client) answerPrompt(h *Handle, req Request, prompt PromptKind) bool {
	if req.Credentials == nil {
		return false
	}
	switch prompt {
	case PromptPassword:
		if req.Credentials.Password == "" {
			return false
		}
		if err := h.SubmitInput(req.Credentials.Password); err != nil {
			c.logger.Warn("password submission failed", logging.Error(err))
		}
		return true
	case PromptGuardCode:
		if req.Credentials.GuardCode == "" {
			return false
		}
		if err := h.SubmitInput(req.Credentials.GuardCode); err != nil {
			c.logger.Warn("guard code submission failed", logging.Error(err))
		}
		return true
	default:
		return false
	}
}

// SubmitInput writes one line to the child's stdin. Used for interactive
// auth answers; the value is never logged.
func (h *Handle) SubmitInput(line string) error {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	if h.stdin == nil {
		return errors.New("stdin closed")
	}
	if _, err := io.WriteString(h.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Terminate requests a graceful stop: SIGTERM to the process group, a grace
// period, then SIGKILL. Safe to call more than once and after exit.
func (h *Handle) Terminate() {
	h.markCancelled()
	h.terminate()
}

// Wait blocks until the process has exited and output is drained, then
// classifies the outcome. A nil return means exit status zero.
func (h *Handle) Wait() error {
	<-h.done

	h.stateMu.Lock()
	timedOut := h.timedOut
	cancelled := h.cancelled
	h.stateMu.Unlock()

	switch {
	case timedOut:
		return faults.New(faults.Timeout, "steamcmd", "attempt exceeded wall-clock limit")
	case cancelled:
		return faults.New(faults.Cancelled, "steamcmd", "terminated on request")
	case h.waitErr != nil:
		return faults.Wrap(faults.ProcessCrashed, "steamcmd exited", h.waitErr)
	default:
		return nil
	}
}

func (h *Handle) markTimedOut() {
	h.stateMu.Lock()
	h.timedOut = true
	h.stateMu.Unlock()
}

func (h *Handle) markCancelled() {
	h.stateMu.Lock()
	if !h.timedOut {
		h.cancelled = true
	}
	h.stateMu.Unlock()
}

func (h *Handle) terminate() {
	h.killOnce.Do(func() {
		h.stdinMu.Lock()
		if h.stdin != nil {
			_ = h.stdin.Close()
			h.stdin = nil
		}
		h.stdinMu.Unlock()

		pid := h.cmd.Process.Pid
		_ = syscall.Kill(-pid, syscall.SIGTERM)

		select {
		case <-h.done:
		case <-time.After(h.grace):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	})
}

func scanLines(r io.Reader, forward func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	scanner.Split(splitPromptAware)
	for scanner.Scan() {
		forward(scanner.Text())
	}
}

// splitPromptAware tokenizes on newlines and carriage returns, and also
// flushes a pending interactive prompt: SteamCMD writes "password:" and
// "Steam Guard code:" without a trailing newline, which a plain line split
// would hold back forever.
func splitPromptAware(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && advance < len(data) && data[advance] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	if isPendingPrompt(data) {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isPendingPrompt(data []byte) bool {
	text := strings.TrimRight(string(data), " ")
	if !strings.HasSuffix(text, ":") {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "password") ||
		strings.Contains(lower, "steam guard") ||
		strings.Contains(lower, "two-factor")
}
