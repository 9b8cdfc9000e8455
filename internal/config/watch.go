package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads an EngineConfig's file layer whenever path changes on
// disk. It never touches a connection already open (resource policy is
// process-wide, but a given document.DB's adapter is fixed at construction
// per SPEC_FULL.md §6); callers that want the new pragma values must open a
// fresh adapter.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan EngineConfig
	logger  *log.Logger
}

// WatchFile starts watching path for writes and creates, pushing freshly
// reloaded configs onto the returned channel. Call Close to stop.
func WatchFile(path string, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, watcher: fw, updates: make(chan EngineConfig, 1), logger: logger}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.logger != nil {
					w.logger.Printf("sqler: config reload failed: %v", err)
				}
				continue
			}
			select {
			case w.updates <- cfg:
			default:
				// drop the stale pending update, the new one supersedes it
				select {
				case <-w.updates:
				default:
				}
				w.updates <- cfg
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Printf("sqler: config watch error: %v", err)
			}
		}
	}
}

// Updates returns the channel of reloaded configs.
func (w *Watcher) Updates() <-chan EngineConfig { return w.updates }

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
