package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framegraph/engine/assets/loaders"
	"github.com/spaghettifunk/framegraph/engine/core"
)

// ErrAssetNotFound wraps os.ErrNotExist so callers can treat a missing
// optional stage like a missing file.
var ErrAssetNotFound = fmt.Errorf("asset not found: %w", os.ErrNotExist)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager indexes the compiled shaders under a directory and keeps the
// index current while shaders are rebuilt.
type AssetManager struct {
	dir     string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes assetsDir. A missing directory is not an error: the
// index stays empty and every load reports ErrAssetNotFound.
func (am *AssetManager) Initialize(assetsDir string) error {
	am.dir = assetsDir
	am.registerLoader(AssetTypeShader, &loaders.SPIRVLoader{})

	am.started = true
	go am.start()

	if _, err := os.Stat(assetsDir); os.IsNotExist(err) {
		core.LogWarn("asset directory %q does not exist", assetsDir)
		return nil
	}
	return am.watchRecursive(assetsDir)
}

func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadShader reads <dir>/<name>.<stage>.spv, stage being vert, frag or comp.
func (am *AssetManager) LoadShader(name, stage string) ([]uint32, error) {
	path := filepath.Join(am.dir, fmt.Sprintf("%s.%s.spv", name, stage))

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %d", asset.Type)
	}
	res, err := loader.Load(path, name)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded shader %s (%d bytes)", path, res.DataSize)
	return res.Code, nil
}

// Assets returns the indexed paths.
func (am *AssetManager) Assets() []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	paths := make([]string, 0, len(am.assets))
	for p := range am.assets {
		paths = append(paths, p)
	}
	return paths
}

func (am *AssetManager) Close() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	if !am.started {
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn(err.Error())
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files already there.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[filepath.Clean(path)] = AssetInfo{
		Path: path,
		Type: assetType,
	}
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) AssetType {
	if filepath.Ext(path) != ".spv" {
		return AssetTypeNone
	}
	switch filepath.Ext(strings.TrimSuffix(path, ".spv")) {
	case ".vert", ".frag", ".comp":
		return AssetTypeShader
	}
	return AssetTypeNone
}
