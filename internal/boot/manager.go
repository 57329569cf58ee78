// Package boot drives the boot sequence: load the index, prime the hash store
// from the CAM on first run, then apply stylesheets and evaluate scripts one
// at a time in index order.
package boot

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/index"
	"github.com/skyline93/strvct/internal/repository"
	"github.com/skyline93/strvct/internal/strvct"
)

// Evaluator runs a script in the shared global scope.
type Evaluator interface {
	Evaluate(ctx context.Context, path string, src []byte) error
}

// StyleApplier appends a stylesheet to the document.
type StyleApplier interface {
	Apply(ctx context.Context, path string, src []byte) error
}

// Options configure a Manager.
type Options struct {
	// IndexPath and CAMPath locate the artifacts on the backend. They
	// default to the paths the build step writes.
	IndexPath string
	CAMPath   string

	// VerifyArtifacts checks the index and CAM against their published
	// .hash sidecars, if present.
	VerifyArtifacts bool

	// Prefetch loads all stylesheets and scripts concurrently before the
	// serial phases start. Evaluation order is not affected.
	Prefetch        bool
	PrefetchWorkers uint

	// NavigationStart is the reference point for the boot duration. It
	// defaults to the start of Run.
	NavigationStart time.Time

	// Progress is called for every processed item.
	Progress func(Event)

	// Done is called once when the boot finished or failed.
	Done func(Report)
}

// Manager boots an application. A Manager runs once.
type Manager struct {
	repo *repository.Repository
	js   Evaluator
	css  StyleApplier
	opts Options

	runID string
	log   *log.Entry

	m       sync.Mutex
	state   State
	current string
	err     error
	idx     *index.Index
}

// New returns a manager that loads resources through repo.
func New(repo *repository.Repository, js Evaluator, css StyleApplier, opts Options) *Manager {
	if opts.IndexPath == "" {
		opts.IndexPath = strvct.ArtifactPath(strvct.IndexArtifact)
	}
	if opts.CAMPath == "" {
		opts.CAMPath = strvct.ArtifactPath(strvct.CAMArchive)
	}
	if opts.PrefetchWorkers == 0 {
		opts.PrefetchWorkers = repo.Connections()
	}

	runID := uuid.NewString()
	return &Manager{
		repo:  repo,
		js:    js,
		css:   css,
		opts:  opts,
		runID: runID,
		log:   log.WithField("run", runID),
	}
}

// RunID identifies this boot in the log.
func (m *Manager) RunID() string {
	return m.runID
}

// State returns the current state.
func (m *Manager) State() State {
	m.m.Lock()
	defer m.m.Unlock()
	return m.state
}

// Err returns the error the boot failed with, if any.
func (m *Manager) Err() error {
	m.m.Lock()
	defer m.m.Unlock()
	return m.err
}

// Current returns the path that is loading, or was loading when the boot
// failed.
func (m *Manager) Current() string {
	m.m.Lock()
	defer m.m.Unlock()
	return m.current
}

// Index returns the loaded index, nil before LoadingIndex completed.
func (m *Manager) Index() *index.Index {
	m.m.Lock()
	defer m.m.Unlock()
	return m.idx
}

// Resource returns the decoded value of the indexed resource at path, loading
// it on first access.
func (m *Manager) Resource(ctx context.Context, path string) (interface{}, error) {
	idx := m.Index()
	if idx == nil {
		return nil, errors.New("index not loaded")
	}

	d, ok := idx.Lookup(path)
	if !ok {
		return nil, errors.Errorf("%v is not indexed", path)
	}
	return d.Value(ctx, m.repo)
}

func (m *Manager) setState(s State) {
	m.m.Lock()
	m.state = s
	m.current = ""
	m.m.Unlock()

	m.log.Infof("boot: %v", s)
}

func (m *Manager) setCurrent(p string) {
	m.m.Lock()
	m.current = p
	m.m.Unlock()
}

func (m *Manager) progress(ev Event) {
	if m.opts.Progress != nil {
		m.opts.Progress(ev)
	}
}

// Run executes the boot sequence. It returns a *BootError if any mandatory
// step fails; the manager then stays in the Error state.
func (m *Manager) Run(ctx context.Context) error {
	m.m.Lock()
	if m.state != Idle {
		state := m.state
		m.m.Unlock()
		return errors.Errorf("boot already started, state is %v", state)
	}
	// leave Idle before unlocking, so a concurrent Run is refused
	m.state = LoadingIndex
	m.m.Unlock()

	start := m.opts.NavigationStart
	if start.IsZero() {
		start = time.Now()
	}

	m.setState(LoadingIndex)
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return m.fail(err, start)
	}

	m.m.Lock()
	m.idx = idx
	m.m.Unlock()
	m.log.Infof("index has %d resources, %d bytes", idx.Len(), idx.Size())

	m.setState(MaybePrimingCam)
	m.primeCAM(ctx)

	stylesheets := idx.Filter("css")
	scripts := idx.Filter("js")

	if m.opts.Prefetch {
		m.prefetch(ctx, append(append([]*index.Descriptor(nil), stylesheets...), scripts...))
	}

	if err := m.runPhase(ctx, EvaluatingCss, stylesheets, m.css.Apply); err != nil {
		return m.fail(err, start)
	}

	if err := m.runPhase(ctx, EvaluatingJs, scripts, m.js.Evaluate); err != nil {
		return m.fail(err, start)
	}

	d := time.Since(start)
	m.setState(Done)

	stats := m.repo.Stats()
	m.log.WithFields(log.Fields{
		"duration":   d.Round(time.Millisecond),
		"fetches":    stats.Fetches,
		"bytes":      stats.BytesLoaded,
		"cache_hits": stats.CacheHits,
	}).Info("boot complete")

	m.done(Report{State: Done, Resources: idx.Len(), Duration: d, Stats: stats})
	return nil
}

func (m *Manager) fail(err error, start time.Time) error {
	m.m.Lock()
	bootErr := &BootError{State: m.state, Path: m.current, Err: err}
	m.state = Error
	m.err = bootErr
	resources := 0
	if m.idx != nil {
		resources = m.idx.Len()
	}
	m.m.Unlock()

	m.log.Errorf("%v", bootErr)
	m.done(Report{State: Error, Err: bootErr, Resources: resources, Duration: time.Since(start), Stats: m.repo.Stats()})
	return bootErr
}

func (m *Manager) done(r Report) {
	r.RunID = m.runID
	if m.opts.Done != nil {
		m.opts.Done(r)
	}
}

func (m *Manager) loadIndex(ctx context.Context) (*index.Index, error) {
	p := m.opts.IndexPath
	m.setCurrent(p)

	buf, err := m.loadArtifact(ctx, p)
	if err != nil {
		return nil, &strvct.IndexLoadError{Path: p, Err: err}
	}

	f, err := strvct.DecodeIndex(bytes.NewReader(buf))
	if err != nil {
		return nil, &strvct.IndexLoadError{Path: p, Err: err}
	}

	return index.New(f), nil
}

// loadArtifact fetches the artifact at p and, if enabled, checks it against
// its sidecar. A missing sidecar is not an error.
func (m *Manager) loadArtifact(ctx context.Context, p string) ([]byte, error) {
	buf, err := m.repo.LoadFile(ctx, p)
	if err != nil {
		return nil, err
	}

	if !m.opts.VerifyArtifacts {
		return buf, nil
	}

	sidecar := strvct.SidecarPath(p)
	raw, err := m.repo.LoadFile(ctx, sidecar)
	if err != nil {
		if m.repo.Backend().IsNotExist(err) {
			m.log.Debugf("no sidecar for %v published", p)
			return buf, nil
		}
		return nil, err
	}

	want, err := strvct.ParseID(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %v", sidecar)
	}

	if err := strvct.VerifyContent(p, want, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// primeCAM fills an empty hash store from the CAM artifact, one entry at a
// time. Failures leave the store partially primed and are only logged;
// resources missing from the store are fetched individually.
func (m *Manager) primeCAM(ctx context.Context) {
	st := m.repo.Store()
	if st == nil {
		m.log.Warn("no hash store available, all resources are fetched individually")
		return
	}

	n, err := st.Count(ctx)
	if err != nil {
		m.log.Warnf("counting hash store entries failed, not priming: %v", err)
		return
	}
	if n > 0 {
		m.log.Debugf("hash store holds %d entries, not priming", n)
		return
	}

	p := m.opts.CAMPath
	m.setCurrent(p)

	cam, err := m.loadCAM(ctx, p)
	if err != nil {
		m.log.Warnf("skipping cache priming: %v", err)
		return
	}

	ids := cam.IDs()
	err = strvct.SerialForEach(ctx, len(ids), func(ctx context.Context, i int) error {
		id := ids[i]
		if err := st.Put(ctx, id, []byte(cam[id])); err != nil {
			return err
		}
		m.progress(Event{State: MaybePrimingCam, Path: id.String(), Progress: float64(i+1) / float64(len(ids))})
		return nil
	})
	if err != nil {
		m.log.Warnf("cache priming aborted: %v", err)
		return
	}

	m.log.Infof("primed hash store with %d entries", len(ids))
}

func (m *Manager) loadCAM(ctx context.Context, p string) (strvct.CAM, error) {
	buf, err := m.loadArtifact(ctx, p)
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	defer func() {
		_ = zr.Close()
	}()

	cam, err := strvct.DecodeCAM(zr)
	if err != nil {
		return nil, err
	}

	// entries are checked by the store on Put
	return cam, nil
}

// prefetch loads the given descriptors concurrently. Errors are left for the
// serial phases to report in order.
func (m *Manager) prefetch(ctx context.Context, ds []*index.Descriptor) {
	_ = strvct.ParallelForEach(ctx, len(ds), m.opts.PrefetchWorkers, func(ctx context.Context, i int) error {
		if _, err := ds[i].Load(ctx, m.repo); err != nil {
			m.log.Debugf("prefetch of %v failed: %v", ds[i].Path, err)
		}
		return nil
	})
}

// runPhase loads and applies ds strictly in order. Each item is applied
// before the next one is loaded.
func (m *Manager) runPhase(ctx context.Context, s State, ds []*index.Descriptor, apply func(ctx context.Context, path string, src []byte) error) error {
	m.setState(s)

	return strvct.SerialForEach(ctx, len(ds), func(ctx context.Context, i int) error {
		d := ds[i]
		m.setCurrent(d.Path)

		buf, err := d.Load(ctx, m.repo)
		if err != nil {
			return err
		}

		if err := apply(ctx, d.Path, buf); err != nil {
			return err
		}

		m.progress(Event{State: s, Path: d.Path, Progress: float64(i+1) / float64(len(ds))})
		return nil
	})
}
