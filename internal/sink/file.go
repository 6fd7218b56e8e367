// internal/sink/file.go
// Description: File-based result sink. One JSON array file per identity key,
// append-only for real data, with the supersede rule: a successful extraction
// displaces any earlier not-found/redirect/sold placeholders for the same
// key, so a transient miss can never permanently poison a file.

package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/bus"
	"github.com/quotescope/quotescope/internal/records"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileConfig configures the file sink.
type FileConfig struct {
	// Dir is where result files are written. Created on demand.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// FilenameFormat supports the {hash} placeholder, which expands to the
	// record's identity key. The key must be the only variable part: one
	// file per identity key is what lets a later success displace an old
	// placeholder.
	FilenameFormat string `mapstructure:"filename_format" yaml:"filename_format"`
}

// DefaultFilenameFormat matches the layout the bulk importer expects.
const DefaultFilenameFormat = "data-{hash}.json"

// FileSink persists save events to identity-keyed JSON files.
type FileSink struct {
	cfg    FileConfig
	logger *zap.Logger
}

// NewFileSink builds the sink and ensures the target directory exists.
func NewFileSink(cfg FileConfig, logger *zap.Logger) (*FileSink, error) {
	if cfg.FilenameFormat == "" {
		cfg.FilenameFormat = DefaultFilenameFormat
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.Dir, err)
	}
	return &FileSink{cfg: cfg, logger: logger.Named("file_sink")}, nil
}

// Attach subscribes the sink to the run's event bus.
func (s *FileSink) Attach(b *bus.Bus) {
	b.On(bus.TopicSave, func(ev bus.Event) {
		if err := s.Save(ev); err != nil {
			s.logger.Error("Failed to persist result",
				zap.String("source", ev.Source),
				zap.String("url", ev.Metadata.PageURL),
				zap.Error(err))
		}
	})
}

// Save appends one timestamped entry to the file for the event's identity
// key, applying the supersede rule first.
func (s *FileSink) Save(ev bus.Event) error {
	path := s.pathFor(ev.Metadata.IdentityKey())

	entries, err := s.readExisting(path)
	if err != nil {
		return err
	}

	entry := records.Entry{
		Timestamp: ev.Timestamp,
		Source:    ev.Source,
		URL:       ev.Metadata.PageURL,
		DealerID:  ev.Metadata.DealerID,
		CarID:     ev.Metadata.CarID,
		Data:      ev.Payload,
	}

	// A real result supersedes earlier placeholders for the same record.
	// Placeholders never displace anything, and successful entries are
	// retained as history.
	if !records.IsPlaceholder(ev.Payload) {
		kept := entries[:0]
		for _, e := range entries {
			sameRecord := e.URL == entry.URL &&
				e.DealerID == entry.DealerID &&
				e.CarID == entry.CarID
			if sameRecord && records.IsPlaceholder(e.Data) {
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}

	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.logger.Info("Saved result",
		zap.String("path", path),
		zap.String("source", ev.Source),
		zap.Int("entries", len(entries)))
	return nil
}

// readExisting loads the current file contents. A corrupt file is logged and
// treated as empty rather than failing the save.
func (s *FileSink) readExisting(path string) ([]records.Entry, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var entries []records.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Older runs occasionally wrote a single object instead of an array.
		var single records.Entry
		if err2 := json.Unmarshal(raw, &single); err2 == nil {
			return []records.Entry{single}, nil
		}
		s.logger.Warn("Existing result file is corrupt, starting over",
			zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

func (s *FileSink) pathFor(key string) string {
	name := strings.ReplaceAll(s.cfg.FilenameFormat, "{hash}", key)
	return filepath.Join(s.cfg.Dir, name)
}
