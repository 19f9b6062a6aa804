package sitefs

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
)

// Operation names used for spans, metrics and log fields.
const (
	OpList   = "list"
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
)

const defaultListConcurrency = 16

// Recorder receives per-operation measurements. internal/metrics implements it.
type Recorder interface {
	ObserveFileOp(op, site, outcome string, d time.Duration)
	AddFileBytes(op, site string, n int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFileOp(string, string, string, time.Duration) {}
func (nopRecorder) AddFileBytes(string, string, int64)                  {}

type Options struct {
	Registry *Registry
	Logger   log.Logger
	Recorder Recorder

	// AtomicWrites stages uploads in a temp file next to the target and
	// renames it into place, so readers never see a partial file.
	AtomicWrites bool

	// ListConcurrency bounds parallel child probes per listing. Zero means
	// the default of 16.
	ListConcurrency int

	DirPerm  fs.FileMode
	FilePerm fs.FileMode
}

// Gateway runs the four file operations against a Registry. It holds no
// per-request state and is safe for concurrent use.
type Gateway struct {
	reg      *Registry
	logger   log.Logger
	rec      Recorder
	tracer   trace.Tracer
	atomic   bool
	listConc int
	dirPerm  fs.FileMode
	filePerm fs.FileMode
}

func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, errors.New("sitefs: registry is required")
	}
	g := &Gateway{
		reg:      opts.Registry,
		logger:   opts.Logger,
		rec:      opts.Recorder,
		tracer:   otel.Tracer("github.com/keithlinneman/linnemanlabs-filegw/internal/sitefs"),
		atomic:   opts.AtomicWrites,
		listConc: opts.ListConcurrency,
		dirPerm:  opts.DirPerm,
		filePerm: opts.FilePerm,
	}
	if g.logger == nil {
		g.logger = log.Nop()
	}
	if g.rec == nil {
		g.rec = nopRecorder{}
	}
	if g.listConc <= 0 {
		g.listConc = defaultListConcurrency
	}
	if g.dirPerm == 0 {
		g.dirPerm = 0o755
	}
	if g.filePerm == 0 {
		g.filePerm = 0o644
	}
	return g, nil
}

func (g *Gateway) Registry() *Registry { return g.reg }

// Target looks up the site and resolves rel against it.
func (g *Gateway) Target(site, rel string) (Target, error) {
	s, err := g.reg.Lookup(site)
	if err != nil {
		return Target{}, err
	}
	return Resolve(s, rel)
}

// loggerFor prefers the request-scoped logger so request ids and trace ids
// land on operation logs.
func (g *Gateway) loggerFor(ctx context.Context) log.Logger {
	return log.FromContextOr(ctx, g.logger)
}

// begin opens a span for op and returns a func that ends it and records the
// outcome. Only internal failures mark the span as errored.
func (g *Gateway) begin(ctx context.Context, op, site string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "sitefs."+op,
		trace.WithAttributes(
			attribute.String("sitefs.op", op),
			attribute.String("sitefs.site", site),
		),
	)
	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("sitefs.outcome", outcome))
		if outcome == "internal" {
			span.RecordError(err)
			span.SetStatus(codes.Error, Reason(err))
		}
		span.End()

		// unknown site names are caller controlled; keep them out of labels
		label := site
		if _, lerr := g.reg.Lookup(site); lerr != nil {
			label = ""
		}
		g.rec.ObserveFileOp(op, label, outcome, time.Since(start))
	}
}
