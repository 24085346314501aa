package assets

import "github.com/spaghettifunk/framegraph/engine/assets/loaders"

type Loader interface {
	Load(path string, name string) (*loaders.Asset, error)
}
