package builder

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/modulemap"
)

// Loader turns one file into a resource.
type Loader interface {
	// Name identifies the loader in index configuration.
	Name() string
	// Match reports whether the loader handles path.
	Match(path string) bool
	// Load reads path and returns its resource. Path and Mtime are filled
	// in by the caller.
	Load(path string) (modulemap.Resource, error)
}

// Loader names.
const (
	LoaderJS       = "js"
	LoaderJSON     = "json"
	LoaderResource = "resource"
)

var registry = map[string]Loader{
	LoaderJS:       jsLoader{},
	LoaderJSON:     jsonLoader{},
	LoaderResource: resourceLoader{},
}

// LoaderNames lists the registered loaders in their default order.
func LoaderNames() []string {
	return []string{LoaderJS, LoaderJSON, LoaderResource}
}

// ResolveLoaders maps loader names to loaders. No names selects every loader.
func ResolveLoaders(names []string) ([]Loader, error) {
	if len(names) == 0 {
		names = LoaderNames()
	}
	loaders := make([]Loader, 0, len(names))
	for _, name := range names {
		l, ok := registry[name]
		if !ok {
			return nil, errors.NewValidationError("loaders", name,
				"unknown loader, expected one of "+strings.Join(LoaderNames(), ", "))
		}
		loaders = append(loaders, l)
	}
	return loaders, nil
}

func matchLoader(loaders []Loader, path string) Loader {
	for _, l := range loaders {
		if l.Match(path) {
			return l
		}
	}
	return nil
}

var providesModule = regexp.MustCompile(`@providesModule\s+(\S+)`)

// jsLoader names a module by its @providesModule docblock tag, falling back
// to the path without its extension.
type jsLoader struct{}

func (jsLoader) Name() string { return LoaderJS }

func (jsLoader) Match(path string) bool {
	return slices.Contains([]string{".js", ".jsx", ".mjs", ".cjs"}, filepath.Ext(path))
}

func (jsLoader) Load(path string) (modulemap.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return modulemap.Resource{}, err
	}
	defer f.Close()

	head := make([]byte, constants.DocblockReadSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return modulemap.Resource{}, err
	}
	id := strings.TrimSuffix(path, filepath.Ext(path))
	if block := docblock(head[:n]); block != nil {
		if m := providesModule.FindSubmatch(block); m != nil {
			id = string(m[1])
		}
	}
	return modulemap.Resource{ID: id, Type: LoaderJS}, nil
}

// docblock returns the leading /** ... */ comment, if any.
func docblock(src []byte) []byte {
	src = bytes.TrimLeft(src, " \t\r\n")
	if !bytes.HasPrefix(src, []byte("/**")) {
		return nil
	}
	end := bytes.Index(src, []byte("*/"))
	if end < 0 {
		return nil
	}
	return src[:end]
}

// jsonLoader handles package.json files, named by their "name" field.
type jsonLoader struct{}

func (jsonLoader) Name() string { return LoaderJSON }

func (jsonLoader) Match(path string) bool {
	return filepath.Base(path) == "package.json"
}

func (jsonLoader) Load(path string) (modulemap.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return modulemap.Resource{}, err
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return modulemap.Resource{}, errors.WrapParse("json", path, err)
	}
	id := pkg.Name
	if id == "" {
		id = filepath.Base(filepath.Dir(path))
	}
	return modulemap.Resource{ID: id, Type: LoaderJSON}, nil
}

// resourceLoader handles image assets, named by their base name.
type resourceLoader struct{}

func (resourceLoader) Name() string { return LoaderResource }

func (resourceLoader) Match(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp":
		return true
	}
	return false
}

func (resourceLoader) Load(path string) (modulemap.Resource, error) {
	return modulemap.Resource{ID: filepath.Base(path), Type: LoaderResource}, nil
}
