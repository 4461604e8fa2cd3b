package registry

import (
	"sort"
	"sync"

	"github.com/VetheonGames/sharenode/pkg/types"
)

// Entry is a file advertised by one or more neighbors. Name and Size
// together identify the file.
type Entry struct {
	Name      string       `json:"name"`
	Size      int64        `json:"size"`
	Locations []types.Addr `json:"locations"`
}

type fileKey struct {
	name string
	size int64
}

// FileRegistry records which neighbors advertise which files
type FileRegistry struct {
	files map[fileKey]*Entry
	mu    sync.RWMutex
}

// NewFileRegistry creates an empty registry
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{
		files: make(map[fileKey]*Entry),
	}
}

// Merge records that location advertises (name, size). It returns true when
// the registry gained a file or a location.
func (fr *FileRegistry) Merge(name string, size int64, location types.Addr) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	key := fileKey{name: name, size: size}
	entry, exists := fr.files[key]
	if !exists {
		fr.files[key] = &Entry{Name: name, Size: size, Locations: []types.Addr{location}}
		return true
	}

	for _, loc := range entry.Locations {
		if loc == location {
			return false
		}
	}
	entry.Locations = append(entry.Locations, location)
	sortAddrs(entry.Locations)
	return true
}

// GetFile returns the entry for (name, size)
func (fr *FileRegistry) GetFile(name string, size int64) (Entry, bool) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	entry, exists := fr.files[fileKey{name: name, size: size}]
	if !exists {
		return Entry{}, false
	}
	return copyEntry(entry), true
}

// ListFiles returns every entry sorted by name, then size
func (fr *FileRegistry) ListFiles() []Entry {
	fr.mu.RLock()
	files := make([]Entry, 0, len(fr.files))
	for _, entry := range fr.files {
		files = append(files, copyEntry(entry))
	}
	fr.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return files[i].Size < files[j].Size
	})
	return files
}

// Len returns the number of distinct files
func (fr *FileRegistry) Len() int {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	return len(fr.files)
}

func copyEntry(e *Entry) Entry {
	out := *e
	out.Locations = append([]types.Addr(nil), e.Locations...)
	return out
}

func sortAddrs(addrs []types.Addr) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
