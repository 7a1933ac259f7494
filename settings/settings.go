package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is one of the supported target audio formats.
type Format string

const (
	FormatMP3  Format = "MP3"
	FormatWAV  Format = "WAV"
	FormatFLAC Format = "FLAC"
	FormatOGG  Format = "OGG"
)

// ParseFormat normalizes a user-supplied format string. The second return is
// false for anything outside the supported set.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatMP3:
		return FormatMP3, true
	case FormatWAV:
		return FormatWAV, true
	case FormatFLAC:
		return FormatFLAC, true
	case FormatOGG:
		return FormatOGG, true
	}
	return "", false
}

// Ext returns the file extension for the format, without the leading dot.
func (f Format) Ext() string {
	return strings.ToLower(string(f))
}

// Settings is the durable last-used record shared across submissions.
type Settings struct {
	Format       Format `json:"format"`
	Threads      int    `json:"threads"`
	OutputFolder string `json:"output_folder"`
}

// Defaults returns the settings used when no durable record exists.
func Defaults() Settings {
	return Settings{
		Format:       FormatMP3,
		Threads:      3,
		OutputFolder: "downloads",
	}
}

// PersistenceError reports a failed settings write. Reads never produce it;
// a missing or corrupt record silently falls back to defaults.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("settings persistence failure at %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists the settings record at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the durable record. Any failure (absent file, unreadable file,
// malformed JSON, out-of-range values) degrades to Defaults.
func (s *Store) Load() Settings {
	def := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return def
	}

	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return def
	}

	if _, ok := ParseFormat(string(st.Format)); !ok {
		st.Format = def.Format
	}
	if st.Threads < 1 {
		st.Threads = def.Threads
	}
	if strings.TrimSpace(st.OutputFolder) == "" {
		st.OutputFolder = def.OutputFolder
	}
	return st
}

// Save atomically replaces the durable record so a concurrent Load never
// observes a half-written file.
func (s *Store) Save(st Settings) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}
