package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// MessageSource serves the main menu message
type MessageSource struct {
	path     string
	fallback string
	logger   *slog.Logger
}

// NewMessageSource reads path on every call so the text can be edited live
func NewMessageSource(path, fallback string, logger *slog.Logger) *MessageSource {
	return &MessageSource{path: path, fallback: fallback, logger: logger}
}

// Text returns the file contents, or the fallback when it cannot be read
func (m *MessageSource) Text() []byte {
	if m.path == "" {
		return []byte(m.fallback)
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to read message file", "path", m.path, "error", err)
		}
		return []byte(m.fallback)
	}
	return data
}
