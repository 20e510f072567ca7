package hastewatch

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/agentstation/hastewatch/pkg/errors"
	"github.com/agentstation/hastewatch/pkg/modulemap"
	"github.com/agentstation/hastewatch/pkg/watcher"
)

// Change is a validated change event turned into rebuild input.
type Change struct {
	// Index is the owning index identifier.
	Index string
	Type  watcher.ChangeType
	// Path is the absolute path of the changed file.
	Path string
	// Position is the path's place in Files after the edit.
	Position int
	// Files is the candidate list handed to the rebuild.
	Files []modulemap.File
	// Base is the map Files was derived from.
	Base *modulemap.Map
}

// statFunc reads file metadata. Tests may substitute it.
type statFunc func(path string) (os.FileInfo, error)

// Translate turns ev into a Change. A nil Change with a nil error means the
// event was discarded: the path matches the ignore rule or the change type
// does not affect content. The watcher's own stat is never trusted; the file
// is stat'ed again here.
func (r *Registry) Translate(ev watcher.Event) (*Change, error) {
	return r.translate(ev, os.Stat)
}

func (r *Registry) translate(ev watcher.Event, stat statFunc) (*Change, error) {
	entry, ok := r.Lookup(ev.Root)
	if !ok {
		return nil, &errors.TranslationError{
			Root: ev.Root, Path: ev.Path, Type: string(ev.Type), Reason: errors.ReasonUnknownRoot,
		}
	}

	path := filepath.Join(ev.Root, ev.Path)
	if entry.Ignored(path) {
		return nil, nil
	}
	switch ev.Type {
	case watcher.Add, watcher.Change, watcher.Delete:
	default:
		return nil, nil
	}

	var mtime time.Time
	if ev.Type != watcher.Delete {
		info, err := stat(path)
		if err != nil {
			return nil, &errors.TranslationError{
				Root: ev.Root, Path: path, Type: string(ev.Type), Reason: errors.ReasonStat, Err: err,
			}
		}
		mtime = info.ModTime()
	}

	base := entry.Map()
	files := base.Files()
	pos := base.Position(path)

	switch ev.Type {
	case watcher.Delete:
		if pos < 0 {
			return nil, &errors.TranslationError{
				Root: ev.Root, Path: path, Type: string(ev.Type), Reason: errors.ReasonUnknownPath,
			}
		}
		files = slices.Delete(files, pos, pos+1)
	case watcher.Add:
		files = append(files, modulemap.File{Path: path, Mtime: mtime})
		pos = len(files) - 1
	case watcher.Change:
		if pos < 0 {
			return nil, &errors.TranslationError{
				Root: ev.Root, Path: path, Type: string(ev.Type), Reason: errors.ReasonUnknownPath,
			}
		}
		files[pos].Mtime = mtime
	}

	return &Change{
		Index:    entry.id,
		Type:     ev.Type,
		Path:     path,
		Position: pos,
		Files:    files,
		Base:     base,
	}, nil
}
