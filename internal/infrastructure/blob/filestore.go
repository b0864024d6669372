package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"DigestScheduler/internal/ports"
)

// FileStore writes audio files under a root directory, one folder per user.
type FileStore struct {
	root  string
	newID func() string
}

var _ ports.AudioStore = (*FileStore)(nil)

// NewFileStore uses root as the base directory; it is created on first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root, newID: uuid.NewString}
}

// PutAudio writes audio atomically and returns its path relative to the root.
func (f *FileStore) PutAudio(ctx context.Context, userID string, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", errors.New("empty audio")
	}
	dir := safeSegment(userID)
	if dir == "" {
		return "", errors.Newf("invalid user id %q", userID)
	}

	rel := filepath.Join(dir, f.newID()+".wav")
	full := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create audio directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".audio-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "write audio")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close audio")
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", errors.Wrap(err, "publish audio")
	}
	return filepath.ToSlash(rel), nil
}

// Open returns the full path for a reference produced by PutAudio.
func (f *FileStore) Open(ref string) (*os.File, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, errors.Newf("invalid audio reference %q", ref)
	}
	file, err := os.Open(filepath.Join(f.root, clean))
	if err != nil {
		return nil, errors.Wrapf(err, "open audio %s", ref)
	}
	return file, nil
}

// safeSegment keeps user ids from escaping the root directory.
func safeSegment(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "_") == "" {
		return ""
	}
	return out
}
