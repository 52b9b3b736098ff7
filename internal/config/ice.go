package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/beachcabana/beach/internal/logger"
)

// ICEServer is a STUN/TURN server configuration for WebRTC P2P
// connections, matching the shape pion/webrtc expects.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

type iceFile struct {
	ICEServers []ICEServer `yaml:"ice_servers"`
}

// ICEWatcher hot-reloads a YAML file of ICE servers so a long-running
// host process picks up new TURN credentials without a restart.
type ICEWatcher struct {
	path string

	mu      sync.RWMutex
	servers []ICEServer

	watcher *fsnotify.Watcher
}

// NewICEWatcher loads path once and starts watching it for changes. If
// path does not exist, the watcher starts with an empty server list and
// begins watching the containing directory so a later create is picked
// up.
func NewICEWatcher(path string) (*ICEWatcher, error) {
	w := &ICEWatcher{path: path}
	w.reload()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = fw

	if err := fw.Add(path); err != nil {
		logger.Debug("ice config watch: file not present yet", "path", path)
		if err := fw.Add(filepath.Dir(path)); err != nil {
			logger.Debug("ice config watch: directory not watchable", "path", path, "err", err)
		}
	}

	go w.loop()
	return w, nil
}

func (w *ICEWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("ice config watch error", "err", err)
		}
	}
}

func (w *ICEWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return
	}
	var f iceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		logger.Warn("ice config parse error", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	w.servers = f.ICEServers
	w.mu.Unlock()
	logger.Info("ice config reloaded", "path", w.path, "servers", len(f.ICEServers))
}

// Servers returns the current ICE server list.
func (w *ICEWatcher) Servers() []ICEServer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ICEServer, len(w.servers))
	copy(out, w.servers)
	return out
}

// Close stops the underlying filesystem watcher.
func (w *ICEWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
