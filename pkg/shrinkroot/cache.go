package shrinkroot

import (
	"bufio"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/715d/shrinkroot/pkg/program"
)

// cacheVersion changes whenever the layout of program.Model does.
const cacheVersion = 1

// cacheFile is the on-disk form of a program cache.
type cacheFile struct {
	Version int           `msgpack:"v"`
	Model   program.Model `msgpack:"model"`
}

// SaveCache writes m to path in msgpack form.
func SaveCache(path string, m *program.Model) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cache %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	if err := msgpack.NewEncoder(w).Encode(&cacheFile{Version: cacheVersion, Model: *m}); err != nil {
		file.Close()
		return fmt.Errorf("encoding cache %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing cache %s: %w", path, err)
	}
	return file.Close()
}

// LoadCache reads a program model written by SaveCache.
func LoadCache(path string) (*program.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	defer file.Close()

	var data cacheFile
	if err := msgpack.NewDecoder(bufio.NewReader(file)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w", path, err)
	}
	if data.Version != cacheVersion {
		return nil, fmt.Errorf("cache %s has version %d, want %d", path, data.Version, cacheVersion)
	}
	return &data.Model, nil
}
