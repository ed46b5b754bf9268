// Package attachment handles inline image uploads: validating the payload is
// an image, parking it on disk, and encoding it for a provider call.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotImage is returned when the uploaded bytes do not sniff as an image.
var ErrNotImage = errors.New("uploaded file is not an image")

// Save validates and stores an uploaded payload under dir, returning the
// stored path. The detected MIME type must be image/*; the extension is taken
// from the client filename with a jpg fallback. The write goes through a temp
// file and rename so a crashed upload never leaves a partial file behind.
func Save(dir string, originalName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty attachment payload")
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w (detected %s)", ErrNotImage, mime)
	}

	// MkdirAll is idempotent, so just call it on every save.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("chat-%s.%s", uuid.NewString(), extOrDefault(originalName))
	path := filepath.Join(dir, name)
	tmp := filepath.Join(dir, ".tmp-"+name)

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("store attachment: %w", err)
	}
	return path, nil
}

// EncodeDataURL reads a stored attachment and returns it as a
// data:<mime>;base64,... URL suitable for an inline image content part.
// A missing file surfaces as an fs.ErrNotExist-wrapped error so callers can
// choose to degrade to text-only.
func EncodeDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

func extOrDefault(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "jpg"
	}
	return strings.ToLower(ext)
}
