// Package assets provides what the renderer consumes from disk: compiled
// shader bytecode and pixel-format tagged image data.
package assets

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vireo/engine/core"
	"golang.org/x/sync/errgroup"
)

const (
	ShaderExt   = ".spv"
	spirvMagic  = 0x07230203
	changesSize = 16
)

// ShaderLibrary loads SPIR-V modules from a directory and caches them by
// file name. With watching enabled, rewritten modules are reloaded and their
// names published on Changes.
type ShaderLibrary struct {
	dir string

	mu   sync.RWMutex
	code map[string][]byte

	watcher *fsnotify.Watcher
	changes chan string
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

func NewShaderLibrary(dir string, watch bool) (*ShaderLibrary, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(core.ErrNotFound, "shader directory %q: %s", dir, err)
	}
	if !fi.IsDir() {
		return nil, errors.Wrapf(core.ErrNotFound, "shader directory %q is not a directory", dir)
	}
	l := &ShaderLibrary{
		dir:     dir,
		code:    make(map[string][]byte),
		changes: make(chan string, changesSize),
		done:    make(chan struct{}),
	}
	if !watch {
		return l, nil
	}
	if l.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, errors.Wrap(err, "creating shader watcher")
	}
	if err := l.watcher.Add(dir); err != nil {
		l.watcher.Close()
		return nil, errors.Wrapf(err, "watching %q", dir)
	}
	l.wg.Add(1)
	go l.watch()
	core.LogDebug("watching %s for shader changes", dir)
	return l, nil
}

// Load reads and validates the named module, replacing any cached copy.
func (l *ShaderLibrary) Load(name string) ([]byte, error) {
	code, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(core.ErrNotFound, "shader %q", name)
		}
		return nil, errors.Wrapf(err, "reading shader %q", name)
	}
	if err := validateSPIRV(code); err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	l.mu.Lock()
	l.code[name] = code
	l.mu.Unlock()
	return code, nil
}

// LoadAll loads every module in the directory concurrently. The first
// failure cancels the rest.
func (l *ShaderLibrary) LoadAll(ctx context.Context) error {
	names, err := l.list()
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := l.Load(name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	core.LogInfo("loaded %d shader modules from %s", len(names), l.dir)
	return nil
}

// Bytecode returns the cached module, loading it on first use.
func (l *ShaderLibrary) Bytecode(name string) ([]byte, error) {
	l.mu.RLock()
	code, ok := l.code[name]
	l.mu.RUnlock()
	if ok {
		return code, nil
	}
	return l.Load(name)
}

// Names lists the cached modules in order.
func (l *ShaderLibrary) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.code))
	for name := range l.code {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Changes delivers the name of every module reloaded after a change on
// disk. It is closed by Close.
func (l *ShaderLibrary) Changes() <-chan string {
	return l.changes
}

func (l *ShaderLibrary) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	var err error
	if l.watcher != nil {
		err = l.watcher.Close()
	}
	l.wg.Wait()
	close(l.changes)
	return err
}

func (l *ShaderLibrary) list() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %q", l.dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ShaderExt) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (l *ShaderLibrary) watch() {
	defer l.wg.Done()
	for {
		select {
		case e, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(e.Name)
			if !strings.HasSuffix(name, ShaderExt) {
				continue
			}
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			// A module that is still being written fails validation and is
			// picked up again by the next write event.
			if _, err := l.Load(name); err != nil {
				core.LogWarn("shader reload of %s skipped: %s", name, err)
				continue
			}
			core.LogInfo("shader %s changed", name)
			select {
			case l.changes <- name:
			case <-l.done:
				return
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-l.done:
			return
		}
	}
}

func validateSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return errors.Newf("SPIR-V size %d is not a whole module", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != spirvMagic {
		return errors.Newf("bad SPIR-V magic %#08x", magic)
	}
	return nil
}
