// Package voices discovers and caches the voice catalog from a directory
// layout. A valid voice is a subdirectory holding a reference transcription
// (ref_text.txt preferred, otherwise the first *.txt) and a reference audio
// file; an optional meta.json can supply a display name.
package voices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/espeech/synthd/internal/core"
)

// File names and extensions recognized during discovery.
const (
	preferredRefTextName = "ref_text.txt"
	metaFileName         = "meta.json"
	textGlob             = "*.txt"
)

// Reference audio extensions, in preference order.
var audioExtensions = []string{".wav", ".flac", ".mp3", ".ogg", ".m4a"}

// voiceMeta is the optional meta.json payload.
type voiceMeta struct {
	Name string `json:"name"`
}

// Catalog is a cached view of the voices directory. Refresh rescans the
// directory; all other methods serve the cached map.
type Catalog struct {
	dir  string
	mu   sync.RWMutex
	byID map[string]core.Voice
}

// New creates a catalog rooted at dir and performs the initial scan. A
// missing directory yields an empty catalog rather than an error.
func New(dir string) (*Catalog, error) {
	catalog := &Catalog{
		dir:  dir,
		mu:   sync.RWMutex{},
		byID: map[string]core.Voice{},
	}

	err := catalog.Refresh()
	if err != nil {
		return nil, err
	}

	return catalog, nil
}

// Refresh rescans the voices directory and replaces the cached catalog.
func (c *Catalog) Refresh() error {
	discovered, err := discover(c.dir)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.byID = discovered
	c.mu.Unlock()

	return nil
}

// Get returns the voice with the given identifier, or core.ErrVoiceNotFound.
func (c *Catalog) Get(id string) (core.Voice, error) {
	c.mu.RLock()
	voice, ok := c.byID[id]
	c.mu.RUnlock()

	if !ok {
		return core.Voice{}, fmt.Errorf("%w: %q", core.ErrVoiceNotFound, id)
	}

	return voice, nil
}

// List returns all voices sorted by identifier.
func (c *Catalog) List() []core.Voice {
	c.mu.RLock()

	out := make([]core.Voice, 0, len(c.byID))
	for _, voice := range c.byID {
		out = append(out, voice)
	}

	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// discover scans dir for valid voice subdirectories.
func discover(dir string) (map[string]core.Voice, error) {
	found := map[string]core.Voice{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return found, nil
		}

		return nil, fmt.Errorf("failed to read voices directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		folder := filepath.Join(dir, entry.Name())

		refTextPath, refAudioPath := findReferenceFiles(folder)
		if refTextPath == "" || refAudioPath == "" {
			continue
		}

		found[entry.Name()] = core.Voice{
			ID:           entry.Name(),
			Name:         displayName(folder, entry.Name()),
			Dir:          folder,
			RefTextPath:  refTextPath,
			RefAudioPath: refAudioPath,
		}
	}

	return found, nil
}

// findReferenceFiles locates the reference transcription and audio file in
// a voice folder. Either may come back empty, which disqualifies the voice.
func findReferenceFiles(folder string) (refTextPath, refAudioPath string) {
	preferred := filepath.Join(folder, preferredRefTextName)

	_, err := os.Stat(preferred)
	if err == nil {
		refTextPath = preferred
	} else {
		texts, _ := filepath.Glob(filepath.Join(folder, textGlob))
		sort.Strings(texts)

		if len(texts) > 0 {
			refTextPath = texts[0]
		}
	}

	for _, ext := range audioExtensions {
		matches, _ := filepath.Glob(filepath.Join(folder, "*"+ext))
		sort.Strings(matches)

		if len(matches) > 0 {
			refAudioPath = matches[0]

			break
		}
	}

	return refTextPath, refAudioPath
}

// displayName reads the optional meta.json name, falling back to the folder
// name. A malformed meta.json is ignored.
func displayName(folder, fallback string) string {
	data, err := os.ReadFile(filepath.Join(folder, metaFileName))
	if err != nil {
		return fallback
	}

	var meta voiceMeta

	err = json.Unmarshal(data, &meta)
	if err != nil || meta.Name == "" {
		return fallback
	}

	return meta.Name
}
