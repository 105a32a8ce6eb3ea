package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gamma-omg/pdf-rag/rag"
)

type uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (rag.UploadResult, error)
}

// Inbox uploads PDFs dropped into a directory. Bursts of events for one file
// are merged, the upload starts once the file has been quiet for mergeEventsDelay.
type Inbox struct {
	log              *slog.Logger
	root             string
	mergeEventsDelay time.Duration
	svc              uploader
}

func NewInbox(root string, delay time.Duration, svc uploader, log *slog.Logger) *Inbox {
	return &Inbox{
		log:              log,
		root:             root,
		mergeEventsDelay: delay,
		svc:              svc,
	}
}

// Watch starts watching the inbox and returns. Watching stops when ctx is done.
func (in *Inbox) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err = w.Add(in.root); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", in.root, err)
	}

	go in.loop(ctx, w)
	return nil
}

// inboxFile is a debounced file waiting to be loaded. A timer that fired
// before being reset or stopped carries an old gen and is ignored.
type inboxFile struct {
	path string
	gen  uint64
}

type debouncer struct {
	delay   time.Duration
	fire    func(inboxFile)
	gen     uint64
	pending map[string]*time.Timer
	current map[string]uint64
}

func newDebouncer(delay time.Duration, fire func(inboxFile)) *debouncer {
	return &debouncer{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]*time.Timer),
		current: make(map[string]uint64),
	}
}

// touch (re)starts the quiet period of path.
func (d *debouncer) touch(path string) {
	if t, ok := d.pending[path]; ok {
		t.Stop()
	}

	d.gen++
	f := inboxFile{path: path, gen: d.gen}
	d.current[path] = f.gen
	d.pending[path] = time.AfterFunc(d.delay, func() { d.fire(f) })
}

func (d *debouncer) forget(path string) {
	if t, ok := d.pending[path]; ok {
		t.Stop()
	}
	delete(d.pending, path)
	delete(d.current, path)
}

// take reports whether f is the latest quiet period of its file and, if so,
// stops tracking the file.
func (d *debouncer) take(f inboxFile) bool {
	if g, ok := d.current[f.path]; !ok || g != f.gen {
		return false
	}

	delete(d.pending, f.path)
	delete(d.current, f.path)
	return true
}

func (d *debouncer) stop() {
	for _, t := range d.pending {
		t.Stop()
	}
}

func (in *Inbox) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	ready := make(chan inboxFile)
	files := newDebouncer(in.mergeEventsDelay, func(f inboxFile) {
		select {
		case ready <- f:
		case <-ctx.Done():
		}
	})
	defer files.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			in.log.Error("inbox watcher error", "error", err)

		case e, ok := <-w.Events:
			if !ok {
				return
			}

			switch {
			case e.Has(fsnotify.Create), e.Has(fsnotify.Write):
				if !rag.IsPDF(e.Name) {
					in.log.Warn("ignoring non-PDF file", "file", e.Name)
					continue
				}
				files.touch(e.Name)

			case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
				files.forget(e.Name)
			}

		case f := <-ready:
			if !files.take(f) {
				in.log.Debug("dropping stale inbox event", "file", f.path)
				continue
			}
			in.load(ctx, f.path)
		}
	}
}

func (in *Inbox) load(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		in.log.Error("failed to read inbox file", "file", path, "error", err)
		return
	}

	res, err := in.svc.Upload(ctx, data, filepath.Base(path))
	if err != nil {
		in.log.Error("failed to load inbox file", "file", path, "error", err)
		return
	}

	in.log.Info("inbox file loaded", "file", path, "pages", res.PageCount, "chunks", res.ChunkCount)
}
