package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"media-grabber/internal/fault"
	"media-grabber/internal/filesystem"
	"media-grabber/internal/logging"
	"media-grabber/internal/media"
	"media-grabber/internal/mediatypes"
	"media-grabber/internal/metrics"
	"media-grabber/internal/workers"
)

const defaultStderrLimit = 8 * 1024

// Config configures a Transcoder.
type Config struct {
	// FFmpegPath is the ffmpeg binary, "ffmpeg" when empty.
	FFmpegPath string
	// Timeout bounds a single job, 0 for none.
	Timeout time.Duration
	// MaxProcesses caps concurrent ffmpeg processes, 0 to size from the CPU count.
	MaxProcesses int
	// StderrLimit is how many trailing stderr bytes are kept for diagnostics.
	StderrLimit int
}

// Transcoder runs ffmpeg jobs that convert a source byte stream into the
// requested output representation.
type Transcoder struct {
	ffmpeg      string
	timeout     time.Duration
	stderrLimit int
	store       *filesystem.TempStore
	slots       *semaphore.Weighted
	maxSlots    int

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// Output is the product of Apply. Exactly one of Stream and Artifact is set.
type Output struct {
	ContentType string
	Extension   string
	// Stream is read to completion by the caller and then closed. Its final
	// Read returns the job's terminal error, or io.EOF on success.
	Stream io.ReadCloser
	// Artifact is a finished file in the temp store. The caller removes it.
	Artifact *media.Artifact
}

// New creates a Transcoder writing artifacts into store.
func New(cfg Config, store *filesystem.TempStore) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = defaultStderrLimit
	}
	slots := workers.TranscodeSlots(cfg.MaxProcesses)

	return &Transcoder{
		ffmpeg:      cfg.FFmpegPath,
		timeout:     cfg.Timeout,
		stderrLimit: cfg.StderrLimit,
		store:       store,
		slots:       semaphore.NewWeighted(int64(slots)),
		maxSlots:    slots,
		processes:   make(map[string]*exec.Cmd),
	}
}

// Slots returns the number of ffmpeg processes allowed to run at once.
func (t *Transcoder) Slots() int {
	return t.maxSlots
}

// Version runs "ffmpeg -version" and returns its first line.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.ffmpeg, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not usable at %q: %w", t.ffmpeg, err)
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return string(bytes.TrimSpace(line)), nil
}

// Apply runs spec over in. Apply takes ownership of in and closes it on every
// path. When toFile is set, or the variant cannot be streamed, the result is a
// temp-store artifact; otherwise it is a live stream.
//
// Errors are *fault.Error values, except that a canceled ctx is returned as
// ctx.Err().
func (t *Transcoder) Apply(ctx context.Context, spec media.TransformSpec, in io.ReadCloser, rendition media.Rendition, toFile bool) (*Output, error) {
	if err := spec.Validate(); err != nil {
		in.Close()
		return nil, fault.E(fault.Unexpected, "transform", err)
	}

	materialize := toFile || spec.Materializes()

	if spec.Kind == media.PassThrough {
		ext := mediatypes.GetExtension(rendition.MimeType)
		out := &Output{ContentType: mediatypes.BaseType(rendition.MimeType), Extension: ext}
		if !materialize {
			out.Stream = in
			return out, nil
		}
		artifact, err := t.saveInput(ctx, in, out.ContentType, ext)
		if err != nil {
			return nil, err
		}
		out.Artifact = artifact
		return out, nil
	}

	ext := outputExtension(spec.Kind)
	out := &Output{ContentType: mediatypes.GetMimeType(ext), Extension: ext}

	var path string
	target := "pipe:1"
	if materialize {
		path = t.store.NewPath(ext)
		target = path
	}

	j, err := t.start(ctx, spec, buildArgs(spec, target), in, !materialize)
	if err != nil {
		return nil, err
	}

	if !materialize {
		out.Stream = &processReader{job: j}
		return out, nil
	}

	if err := j.finish(false); err != nil {
		t.discard(path)
		return nil, err
	}

	if err := t.verifyArtifact(spec, path, j.stderr.String()); err != nil {
		t.discard(path)
		return nil, err
	}

	out.Artifact = &media.Artifact{Path: path, ContentType: out.ContentType, Extension: ext}
	return out, nil
}

func outputExtension(kind media.TransformKind) string {
	switch kind {
	case media.AudioExtract:
		return ".mp3"
	case media.ClipResize:
		return ".gif"
	case media.FrameCapture:
		return ".png"
	}
	return ".bin"
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// buildArgs returns the ffmpeg arguments for spec. Input is always stdin.
func buildArgs(spec media.TransformSpec, target string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch spec.Kind {
	case media.AudioExtract:
		args = append(args,
			"-i", "pipe:0",
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", strconv.Itoa(spec.AudioBitrate)+"k",
			"-f", "mp3",
		)
	case media.ClipResize:
		args = append(args,
			"-i", "pipe:0",
			"-t", seconds(spec.Duration),
			"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", spec.FPS, spec.Width, spec.Height),
			"-an",
			"-f", "gif",
		)
	case media.FrameCapture:
		args = append(args,
			"-ss", seconds(spec.Offset),
			"-i", "pipe:0",
			"-frames:v", "1",
			"-an",
			"-f", "image2",
			"-c:v", "png",
		)
	}

	if target != "pipe:1" {
		args = append(args, "-y")
	}
	return append(args, target)
}

// saveInput copies a pass-through stream into a temp-store artifact.
func (t *Transcoder) saveInput(ctx context.Context, in io.ReadCloser, contentType, ext string) (*media.Artifact, error) {
	defer in.Close()

	path := t.store.NewPath(ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fault.E(fault.TransformFailed, "transform", fmt.Errorf("create artifact: %w", err))
	}

	_, copyErr := io.Copy(f, in)
	closeErr := f.Close()

	switch {
	case ctx.Err() != nil:
		t.discard(path)
		return nil, ctx.Err()
	case copyErr != nil:
		t.discard(path)
		if _, ok := fault.As(copyErr); ok || errors.Is(copyErr, context.Canceled) {
			return nil, copyErr
		}
		return nil, fault.E(fault.TransformFailed, "transform", fmt.Errorf("write artifact: %w", copyErr))
	case closeErr != nil:
		t.discard(path)
		return nil, fault.E(fault.TransformFailed, "transform", fmt.Errorf("write artifact: %w", closeErr))
	}

	return &media.Artifact{Path: path, ContentType: contentType, Extension: ext}, nil
}

// verifyArtifact checks that ffmpeg left a non-empty, well-formed file and
// applies still-image post-processing. ffmpeg exits 0 when a seek lands past
// the end, so its stderr is kept as the cause.
func (t *Transcoder) verifyArtifact(spec media.TransformSpec, path, stderr string) error {
	info, err := t.store.Stat(path)
	if err != nil || info.Size() == 0 {
		return fault.Errorf(fault.TransformFailed, "transform", "%s produced no output", spec.Kind).
			WithDiagnostic(stderr)
	}

	if spec.Kind != media.FrameCapture {
		return nil
	}

	if err := media.FitStill(path, spec.Width); err != nil {
		return fault.E(fault.TransformFailed, "transform", err).WithDiagnostic(stderr)
	}
	return nil
}

func (t *Transcoder) discard(path string) {
	if err := t.store.Remove(path); err != nil {
		logging.Warn("Failed to remove partial artifact %s: %v", path, err)
	}
}

// Cleanup stops all active ffmpeg processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for id, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process %d (job %s)", cmd.Process.Pid, id)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process for job %s: %v", id, err)
			}
		}
	}
}

// Active returns the number of running ffmpeg processes.
func (t *Transcoder) Active() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

func (t *Transcoder) register(id string, cmd *exec.Cmd) {
	t.processMu.Lock()
	t.processes[id] = cmd
	t.processMu.Unlock()
	metrics.TranscoderProcessesActive.Inc()
}

func (t *Transcoder) unregister(id string) {
	t.processMu.Lock()
	delete(t.processes, id)
	t.processMu.Unlock()
	metrics.TranscoderProcessesActive.Dec()
}

// job is one running ffmpeg process.
type job struct {
	t       *Transcoder
	id      string
	variant string
	cmd     *exec.Cmd
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	in      io.ReadCloser
	stdout  io.ReadCloser
	stderr  *tailBuffer
	start   time.Time

	inputClosed atomic.Bool
	inputErr    error
	inputDone   chan struct{}
}

func (t *Transcoder) start(ctx context.Context, spec media.TransformSpec, args []string, in io.ReadCloser, stream bool) (*job, error) {
	waitStart := time.Now()
	if err := t.slots.Acquire(ctx, 1); err != nil {
		in.Close()
		return nil, err
	}
	metrics.TranscoderSlotWait.Observe(time.Since(waitStart).Seconds())

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if t.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, t.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}

	j := &job{
		t:         t,
		id:        uuid.NewString(),
		variant:   spec.Kind.String(),
		parent:    ctx,
		ctx:       jobCtx,
		cancel:    cancel,
		in:        in,
		stderr:    newTailBuffer(t.stderrLimit),
		inputDone: make(chan struct{}),
	}

	cmd := exec.CommandContext(jobCtx, t.ffmpeg, args...)
	cmd.Stderr = j.stderr
	cmd.WaitDelay = 5 * time.Second
	j.cmd = cmd

	fail := func(err error) (*job, error) {
		cancel()
		in.Close()
		t.slots.Release(1)
		return nil, fault.E(fault.TransformFailed, "transform", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fail(fmt.Errorf("failed to create stdin pipe: %w", err))
	}
	if stream {
		if j.stdout, err = cmd.StdoutPipe(); err != nil {
			return fail(fmt.Errorf("failed to create stdout pipe: %w", err))
		}
	}

	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("failed to start ffmpeg: %w", err))
	}
	j.start = time.Now()
	t.register(j.id, cmd)
	logging.Debug("Started ffmpeg pid %d for %s job %s", cmd.Process.Pid, j.variant, j.id)

	go j.feed(stdin)
	return j, nil
}

// feed copies the source into ffmpeg's stdin. Write errors are expected when
// ffmpeg stops reading early (e.g. after the single frame it needs); only read
// errors from the source are recorded.
func (j *job) feed(stdin io.WriteCloser) {
	defer close(j.inputDone)

	src := &readErrRecorder{r: j.in, closed: &j.inputClosed}
	_, _ = io.Copy(stdin, bufio.NewReaderSize(src, 64*1024))
	_ = stdin.Close()

	j.inputErr = src.err
}

// finish waits for ffmpeg, releases every resource the job holds and returns
// its terminal result. kill aborts the process first.
func (j *job) finish(kill bool) error {
	if kill && j.cmd.Process != nil {
		_ = j.cmd.Process.Kill()
	}

	waitErr := j.cmd.Wait()

	j.inputClosed.Store(true)
	j.in.Close()
	<-j.inputDone

	j.t.unregister(j.id)
	j.t.slots.Release(1)

	err := j.result(waitErr)
	status := "success"
	switch {
	case kill:
		status = "canceled"
		err = nil
	case err == nil:
	case j.parent.Err() != nil:
		status = "canceled"
	case errors.Is(j.ctx.Err(), context.DeadlineExceeded):
		status = "timeout"
	default:
		status = "error"
	}
	j.cancel()

	elapsed := time.Since(j.start)
	metrics.TranscoderJobsTotal.WithLabelValues(j.variant, status).Inc()
	metrics.TranscoderJobDuration.WithLabelValues(j.variant).Observe(elapsed.Seconds())
	logging.Debug("ffmpeg %s job %s finished in %v: %s", j.variant, j.id, elapsed.Round(time.Millisecond), status)

	return err
}

func (j *job) result(waitErr error) error {
	switch {
	case j.parent.Err() != nil:
		return j.parent.Err()
	case errors.Is(j.ctx.Err(), context.DeadlineExceeded):
		return fault.Errorf(fault.TransformFailed, "transform", "timed out after %v", j.t.timeout).
			WithDiagnostic(j.stderr.String())
	case j.inputErr != nil:
		if _, ok := fault.As(j.inputErr); ok {
			return j.inputErr
		}
		return fault.E(fault.NetworkError, "transform", j.inputErr)
	case waitErr != nil:
		diag := j.stderr.String()
		logging.Warn("ffmpeg %s job %s failed: %v: %s", j.variant, j.id, waitErr, diag)
		return fault.E(fault.TransformFailed, "transform", fmt.Errorf("ffmpeg: %w", waitErr)).WithDiagnostic(diag)
	}
	return nil
}

// processReader streams ffmpeg's stdout and reports the job's terminal
// result on the final Read.
type processReader struct {
	job  *job
	once sync.Once
	err  error
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.job.stdout.Read(b)
	if err == nil {
		return n, nil
	}

	p.once.Do(func() { p.err = p.job.finish(false) })
	if p.err != nil {
		return n, p.err
	}
	if err != io.EOF {
		// stdout was torn down underneath us by Close.
		return n, io.ErrClosedPipe
	}
	return n, io.EOF
}

// Close kills ffmpeg if it is still running and releases the job.
func (p *processReader) Close() error {
	p.once.Do(func() { p.err = p.job.finish(true) })
	return nil
}

// readErrRecorder remembers the first read error that was not caused by the
// job closing its own input.
type readErrRecorder struct {
	r      io.Reader
	closed *atomic.Bool
	err    error
}

func (r *readErrRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF && r.err == nil && !r.closed.Load() {
		r.err = err
	}
	return n, err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
