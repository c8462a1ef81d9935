package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/angelmondragon/draftsync/internal/metadata"
	"github.com/angelmondragon/draftsync/pkg/enums"
)

// ErrMalformedSource marks a source whose contents cannot be decoded. A
// re-read would fail the same way, so the import treats it as skipped.
var ErrMalformedSource = errors.New("malformed legacy source")

// Record is one loosely-typed legacy draft.
type Record map[string]any

// Source yields the legacy records of a single content type.
type Source interface {
	Name() string
	ContentType() enums.ContentType
	Load(ctx context.Context) ([]Record, error)
}

// CollectionName is the legacy name of a per-type store, e.g. "offline_posts".
func CollectionName(contentType enums.ContentType) string {
	return fmt.Sprintf("offline_%ss", contentType)
}

// FileSource reads <dir>/offline_<type>s.json holding a JSON array.
type FileSource struct {
	Dir  string
	Type enums.ContentType
}

func (s FileSource) Name() string {
	return filepath.Join(s.Dir, CollectionName(s.Type)+".json")
}

func (s FileSource) ContentType() enums.ContentType {
	return s.Type
}

func (s FileSource) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Name())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Name(), err)
	}
	return decodeRecords(s.Name(), raw)
}

// KVSource reads a legacy collection stored as a JSON array under a
// sync_metadata key.
type KVSource struct {
	Repo metadata.Repository
	Type enums.ContentType
}

func (s KVSource) Name() string {
	return "metadata:" + CollectionName(s.Type)
}

func (s KVSource) ContentType() enums.ContentType {
	return s.Type
}

func (s KVSource) Load(ctx context.Context) ([]Record, error) {
	value, ok, err := s.Repo.Get(ctx, CollectionName(s.Type))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeRecords(s.Name(), []byte(value))
}

// DefaultSources returns a file and a key/value source for every content
// type. dir may be empty to skip file sources.
func DefaultSources(dir string, repo metadata.Repository) []Source {
	var sources []Source
	for _, ct := range enums.ContentTypes() {
		if dir != "" {
			sources = append(sources, FileSource{Dir: dir, Type: ct})
		}
		if repo != nil {
			sources = append(sources, KVSource{Repo: repo, Type: ct})
		}
	}
	return sources
}

// decodeRecords tolerates non-object entries; they become nil records and
// are reported as malformed by the converter.
func decodeRecords(name string, raw []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedSource, name, err)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			records = append(records, nil)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
