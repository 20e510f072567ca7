package modulemap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
)

// magic prefixes every cache file so foreign files fail fast.
var magic = []byte("HWMAP")

// Header describes a cache file.
type Header struct {
	Version   uint      `cbor:"1,keyasint"`
	WrittenAt time.Time `cbor:"2,keyasint"`
	Count     int       `cbor:"3,keyasint"`
}

type cacheFile struct {
	Header    Header          `cbor:"1,keyasint"`
	Resources []cacheResource `cbor:"2,keyasint"`
}

// cacheResource stores mtimes as nanoseconds so a reload compares equal to
// the stat it was built from.
type cacheResource struct {
	ID    string `cbor:"1,keyasint"`
	Path  string `cbor:"2,keyasint"`
	Type  string `cbor:"3,keyasint"`
	Mtime int64  `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("modulemap: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("modulemap: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("modulemap: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("modulemap: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode writes m to w in the cache file format.
func Encode(w io.Writer, m *Map, writtenAt time.Time) error {
	cf := cacheFile{
		Header: Header{
			Version:   constants.CacheFormatVersion,
			WrittenAt: writtenAt.UTC(),
			Count:     m.Len(),
		},
		Resources: make([]cacheResource, 0, m.Len()),
	}
	for _, r := range m.Resources() {
		cf.Resources = append(cf.Resources, cacheResource{
			ID:    r.ID,
			Path:  r.Path,
			Type:  r.Type,
			Mtime: r.Mtime.UnixNano(),
		})
	}
	payload, err := encMode.Marshal(cf)
	if err != nil {
		return fmt.Errorf("encode module map: %w", err)
	}
	if _, err := w.Write(magic); err != nil {
		return err
	}
	_, err = w.Write(zstdEncoder.EncodeAll(payload, nil))
	return err
}

// Decode reads a map written by Encode.
func Decode(r io.Reader) (*Map, Header, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Header{}, err
	}
	if !bytes.HasPrefix(data, magic) {
		return nil, Header{}, errors.NewParseError("cache", "", "missing cache file signature", nil)
	}
	payload, err := zstdDecoder.DecodeAll(data[len(magic):], nil)
	if err != nil {
		return nil, Header{}, errors.WrapParse("zstd", "", err)
	}
	var cf cacheFile
	if err := decMode.Unmarshal(payload, &cf); err != nil {
		return nil, Header{}, errors.WrapParse("cbor", "", err)
	}
	if cf.Header.Version != constants.CacheFormatVersion {
		return nil, cf.Header, errors.NewParseError("cache", "",
			fmt.Sprintf("unsupported cache format version %d", cf.Header.Version), nil)
	}
	resources := make([]Resource, len(cf.Resources))
	for i, cr := range cf.Resources {
		resources[i] = Resource{
			ID:    cr.ID,
			Path:  cr.Path,
			Type:  cr.Type,
			Mtime: time.Unix(0, cr.Mtime),
		}
	}
	return New(resources), cf.Header, nil
}

// WriteFile atomically replaces path with the encoded map, creating parent
// directories as needed.
func WriteFile(path string, m *Map) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := Encode(tmp, m, time.Now()); err != nil {
		tmp.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := tmp.Chmod(constants.FilePermissions); err != nil {
		tmp.Close()
		return errors.WrapIO("chmod", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WrapIO("rename", path, err)
	}
	return nil
}

// ReadFile loads a cache file written by WriteFile.
func ReadFile(path string) (*Map, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Header{}, errors.NewNotFoundError("cache file", path)
		}
		return nil, Header{}, errors.WrapIO("open", path, err)
	}
	defer f.Close()

	m, h, err := Decode(f)
	if err != nil {
		if pe, ok := err.(*errors.ParseError); ok {
			pe.File = path
		}
		return nil, h, err
	}
	return m, h, nil
}
