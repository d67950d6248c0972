package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lumen-engine/lumen/engine/core"
)

// ShaderInfo tracks one SPIR-V blob known to the manager.
type ShaderInfo struct {
	Path       string
	LastLoaded time.Time
}

// Manager indexes the SPIR-V binaries in a shader directory and watches it
// for changes. When a blob is rewritten on disk the shader's name is pushed
// onto the reload channel so the application can rebuild the pipelines that
// use it.
type Manager struct {
	dir string

	mutex   sync.RWMutex
	shaders map[string]ShaderInfo

	watcher  *fsnotify.Watcher
	done     chan struct{}
	isClosed bool
	reloads  chan string
}

func NewManager(dir string) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Manager{
		dir:     dir,
		shaders: make(map[string]ShaderInfo),
		watcher: watcher,
		done:    make(chan struct{}),
		reloads: make(chan string, 16),
	}, nil
}

// Initialize indexes the directory and starts the watch goroutine.
func (m *Manager) Initialize() error {
	if m.isClosed {
		return errors.New("asset manager already closed")
	}

	err := filepath.Walk(m.dir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return m.watcher.Add(walkPath)
		}
		m.handleFileEvent(walkPath)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index shader directory %s: %w", m.dir, err)
	}

	go m.start()
	return nil
}

// LoadShader reads the named SPIR-V blob from disk. The name is the file
// name without the .spv extension.
func (m *Manager) LoadShader(name string) ([]byte, error) {
	m.mutex.RLock()
	info, exists := m.shaders[name]
	m.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("shader not found: %s", name)
	}

	code, err := os.ReadFile(info.Path)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader %s is not valid SPIR-V: size %d", name, len(code))
	}

	m.mutex.Lock()
	info.LastLoaded = time.Now()
	m.shaders[name] = info
	m.mutex.Unlock()

	return code, nil
}

// Shaders returns the names of all indexed shaders.
func (m *Manager) Shaders() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.shaders))
	for name := range m.shaders {
		names = append(names, name)
	}
	return names
}

// Reloads delivers the names of shaders whose files changed on disk.
func (m *Manager) Reloads() <-chan string {
	return m.reloads
}

func (m *Manager) Shutdown() {
	if m.isClosed {
		return
	}
	m.isClosed = true
	close(m.done)
}

func (m *Manager) start() {
	for {
		select {
		case e := <-m.watcher.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					m.watcher.Add(e.Name)
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if name, ok := m.handleFileEvent(e.Name); ok {
					// The frame loop may lag behind editor saves; drop the
					// notification rather than block the watcher.
					select {
					case m.reloads <- name:
					default:
					}
				}
			}
			if e.Op&fsnotify.Remove != 0 {
				m.removeShader(e.Name)
				m.watcher.Remove(e.Name)
			}

		case err := <-m.watcher.Errors:
			if err != nil {
				core.LogError("shader watcher: %s", err.Error())
			}

		case <-m.done:
			m.watcher.Close()
			close(m.reloads)
			return
		}
	}
}

func (m *Manager) handleFileEvent(path string) (string, bool) {
	if filepath.Ext(path) != ".spv" {
		return "", false
	}
	name := shaderName(path)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.shaders[name] = ShaderInfo{
		Path:       path,
		LastLoaded: time.Now(),
	}
	return name, true
}

func (m *Manager) removeShader(path string) {
	if filepath.Ext(path) != ".spv" {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.shaders, shaderName(path))
}

func shaderName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".spv")
}
