package sentinel

import (
	"fmt"
	"io"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

const memPrefix = "changemap://"

// memRasters serves in-memory rasters to GDAL by key.
type memRasters struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func (m *memRasters) ReadAt(key string, buf []byte, off int64) (int, error) {
	m.mu.RLock()
	data, ok := m.files[key]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s%s: no such raster", memPrefix, key)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(buf, data[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memRasters) Size(key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[key]
	if !ok {
		return 0, fmt.Errorf("%s%s: no such raster", memPrefix, key)
	}
	return int64(len(data)), nil
}

func (m *memRasters) put(data []byte) string {
	key := uuid.NewString() + ".tif"
	m.mu.Lock()
	m.files[key] = data
	m.mu.Unlock()
	return key
}

func (m *memRasters) remove(key string) {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
}

var (
	memFiles    = &memRasters{files: make(map[string][]byte)}
	memOnce     sync.Once
	memRegister error
)

// registerMemRasters installs the in-memory handler on first use; GDAL
// refuses a second registration on the same prefix.
func registerMemRasters() error {
	memOnce.Do(func() {
		memRegister = godal.RegisterVSIHandler(memPrefix, memFiles, godal.VSIHandlerStripPrefix(true))
		if memRegister != nil {
			memRegister = fmt.Errorf("failed to register in-memory rasters: %w", memRegister)
		}
	})
	return memRegister
}
