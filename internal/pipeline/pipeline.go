// Package pipeline runs one download request through its stages:
// validate, resolve, acquire, transform and deliver.
package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"media-grabber/internal/fault"
	"media-grabber/internal/logging"
	"media-grabber/internal/media"
	"media-grabber/internal/mediatypes"
	"media-grabber/internal/memory"
	"media-grabber/internal/metrics"
	"media-grabber/internal/streaming"
	"media-grabber/internal/transcoder"
)

// State is a pipeline state.
type State string

const (
	Validating   State = "validating"
	Resolving    State = "resolving"
	Acquiring    State = "acquiring"
	Transforming State = "transforming"
	Delivering   State = "delivering"
	Done         State = "done"
	Failed       State = "failed"
)

// Resolver resolves a source URL to metadata.
type Resolver interface {
	ExtractID(rawURL string) (media.SourceID, error)
	Resolve(ctx context.Context, rawURL string) (*media.Metadata, error)
	// Invalidate forgets the metadata of rawURL.
	Invalidate(ctx context.Context, rawURL string)
}

// Acquirer opens the byte stream of a rendition.
type Acquirer interface {
	Acquire(ctx context.Context, meta *media.Metadata, sel media.Selector) (io.ReadCloser, media.Rendition, error)
}

// Transformer converts a byte stream into the requested representation.
type Transformer interface {
	Apply(ctx context.Context, spec media.TransformSpec, in io.ReadCloser, rendition media.Rendition, toFile bool) (*transcoder.Output, error)
}

// Deliverer writes transform output to the caller.
type Deliverer interface {
	Deliver(ctx context.Context, w http.ResponseWriter, out *transcoder.Output, filename string) (int64, error)
}

// Request is one download request.
type Request struct {
	URL      string
	Kind     mediatypes.OutputKind
	Spec     media.TransformSpec
	Selector media.Selector
	// PreferFile materializes streamable output before sending it, so the
	// response carries a Content-Length.
	PreferFile bool
}

// Result describes a completed run.
type Result struct {
	ID        string
	Title     string
	Filename  string
	Rendition media.Rendition
	Bytes     int64
}

// Pipeline wires the stages together. It holds no per-request state.
type Pipeline struct {
	resolver    Resolver
	acquirer    Acquirer
	transformer Transformer
	deliverer   Deliverer
	memory      *memory.Monitor
}

// New creates a Pipeline. mon may be nil to disable memory backpressure.
func New(r Resolver, a Acquirer, t Transformer, d Deliverer, mon *memory.Monitor) *Pipeline {
	return &Pipeline{resolver: r, acquirer: a, transformer: t, deliverer: d, memory: mon}
}

// run tracks the state of a single request.
type run struct {
	id      string
	kind    string
	log     *logging.Logger
	state   State
	entered time.Time
}

func (r *run) enter(s State) {
	now := time.Now()
	metrics.PipelineStageDuration.WithLabelValues(string(r.state)).Observe(now.Sub(r.entered).Seconds())
	metrics.PipelineTransitionsTotal.WithLabelValues(string(s)).Inc()
	r.log.Debug("%s -> %s (%v)", r.state, s, now.Sub(r.entered).Round(time.Millisecond))
	r.state, r.entered = s, now
}

// Run executes req and delivers the result to w. On error nothing has been
// written to w unless the returned fault is Committed; the caller sends the
// error response, or aborts the connection if it is committed.
//
// Errors are *fault.Error values; a client that went away is reported with an
// error for which ClientGone is true.
func (p *Pipeline) Run(ctx context.Context, w http.ResponseWriter, req Request) (res Result, err error) {
	id := logging.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	tag := id
	if len(tag) > 8 {
		tag = tag[:8]
	}
	r := &run{
		id:      id,
		kind:    string(req.Kind),
		log:     logging.With(tag),
		state:   Validating,
		entered: time.Now(),
	}
	res.ID = id
	start := r.entered

	metrics.PipelinesActive.Inc()
	metrics.PipelineTransitionsTotal.WithLabelValues(string(Validating)).Inc()
	r.log.Debug("%s %s (%s)", req.Kind, req.URL, req.Spec.Kind)

	defer func() {
		metrics.PipelinesActive.Dec()
		failedIn := r.state
		if err != nil {
			err = normalize(err)
			r.enter(Failed)
		} else {
			r.enter(Done)
		}
		outcome := Outcome(err)
		metrics.PipelineRunsTotal.WithLabelValues(r.kind, outcome).Inc()

		elapsed := time.Since(start).Round(time.Millisecond)
		switch {
		case err == nil:
			r.log.Info("Delivered %q (%s, %d bytes) in %v", res.Filename, req.Kind, res.Bytes, elapsed)
		case outcome == "canceled":
			r.log.Info("Client went away while %s after %v", failedIn, elapsed)
		default:
			fe, _ := fault.As(err)
			r.log.Warn("Failed while %s after %v: %v", failedIn, elapsed, err)
			if fe != nil && fe.Diagnostic != "" {
				r.log.Debug("Diagnostic: %s", fe.Diagnostic)
			}
		}
	}()

	if err := req.Spec.Validate(); err != nil {
		return res, fault.E(fault.Unexpected, "validate", err)
	}
	if _, err := p.resolver.ExtractID(req.URL); err != nil {
		return res, err
	}

	r.enter(Resolving)
	meta, err := p.resolver.Resolve(ctx, req.URL)
	if err != nil {
		return res, err
	}
	res.Title = meta.Title

	r.enter(Acquiring)
	in, rendition, err := p.acquirer.Acquire(ctx, meta, req.Selector)
	if err != nil {
		if staleURL(err) {
			r.log.Debug("Dropping cached metadata for %s after %v", meta.ID, err)
			p.resolver.Invalidate(context.WithoutCancel(ctx), req.URL)
		}
		return res, err
	}
	res.Rendition = rendition

	if err := p.memory.WaitIfPaused(ctx); err != nil {
		in.Close()
		return res, err
	}

	r.enter(Transforming)
	out, err := p.transformer.Apply(ctx, req.Spec, in, rendition, req.PreferFile)
	if err != nil {
		return res, err
	}

	r.enter(Delivering)
	res.Filename = mediatypes.Filename(meta.Title, out.Extension)
	res.Bytes, err = p.deliverer.Deliver(ctx, w, out, res.Filename)
	metrics.DeliveredBytesTotal.WithLabelValues(r.kind).Add(float64(res.Bytes))
	return res, err
}

// normalize makes sure every error leaving Run is a *fault.Error.
func normalize(err error) error {
	if _, ok := fault.As(err); ok {
		return err
	}
	if ClientGone(err) {
		return fault.E(fault.DeliveryFailed, "pipeline", err)
	}
	return fault.E(fault.Unexpected, "pipeline", err)
}

// staleURL reports whether the remote host rejected a cached stream URL.
// Signed URLs expire or get revoked before the metadata TTL runs out.
func staleURL(err error) bool {
	fe, ok := fault.As(err)
	return ok && fe.Kind == fault.NetworkError &&
		(fe.Status == http.StatusForbidden || fe.Status == http.StatusGone)
}

// ClientGone reports whether err means the caller disconnected.
func ClientGone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, streaming.ErrClientGone)
}

// Outcome returns the metrics label for a run that ended with err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case ClientGone(err):
		return "canceled"
	}
	return fault.KindOf(err).String()
}

// Committed reports whether a response was already started when err occurred.
func Committed(err error) bool {
	fe, ok := fault.As(err)
	return ok && fe.Committed
}
