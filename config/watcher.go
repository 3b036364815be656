package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"go2tv.app/screenshot/internal/debuglog"
)

var debug = debuglog.New("config")

// Watcher keeps a merged Config current while the JSON file changes. The
// directory is watched so atomic replaces and late file creation are seen.
// A file that fails to parse or validate leaves the previous Config in
// place.
type Watcher struct {
	path  string
	extra []*Config

	mu      sync.RWMutex
	current Config

	onChange func(Config)

	fsw       *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Watch loads path and starts watching it. extra layers are applied over
// the file on every reload, e.g. the environment and flags. onChange, when
// set, is called after each successful reload.
func Watch(path string, onChange func(Config), extra ...*Config) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		extra:    extra,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current = cfg

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Current returns the latest valid Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) load() (Config, error) {
	file, err := LoadFile(w.path)
	if err != nil {
		return Config{}, err
	}
	layers := append([]*Config{file}, w.extra...)
	cfg := Merge(layers...)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.Printf("watch path=%s err=%v", w.path, err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			debug.Printf("reload path=%s parse_err=%v", w.path, perr.Err)
		} else {
			debug.Printf("reload path=%s err=%v", w.path, err)
		}
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	debug.Printf("reload path=%s format=%s quality=%d", w.path, cfg.Format, *cfg.Quality)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
