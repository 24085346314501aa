package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// Watcher reloads a config file whenever it is written or replaced and
// delivers every valid result on Configs. Invalid files are logged and
// skipped so the last good config stays in effect.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	configs  chan *Config
	done     chan struct{}
	wg       sync.WaitGroup

	mutex    sync.Mutex
	isClosed bool
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors replace files, so the directory is watched
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		configs:  make(chan *Config, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Configs delivers reloaded configs. Only the most recent one is kept when
// the reader falls behind. The channel is closed by Close.
func (w *Watcher) Configs() <-chan *Config { return w.configs }

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("config watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path || !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("config reload skipped: %s", err)
				continue
			}
			w.deliver(cfg)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("config watcher: %s", err)

		case <-w.done:
			w.fsnotify.Close()
			close(w.configs)
			return
		}
	}
}

func (w *Watcher) deliver(cfg *Config) {
	for {
		select {
		case w.configs <- cfg:
			return
		default:
		}
		// drop the stale one
		select {
		case <-w.configs:
		default:
		}
	}
}
