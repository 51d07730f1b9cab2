package services

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"messenger/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// BlobStore хранит медиа и возвращает путь, который кладётся в сообщение
type BlobStore interface {
	Put(ctx context.Context, r io.Reader, ext string) (string, error)
	// Resolve проверяет, что путь выдан этим хранилищем и файл на месте
	Resolve(ctx context.Context, p string) error
}

// LocalBlobStore складывает файлы в каталог по датам: <dir>/yyyy/mm/dd/<uuid><ext>
type LocalBlobStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

func NewLocalBlobStore(dir, baseURL string) *LocalBlobStore {
	return &LocalBlobStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), now: utcNow}
}

func (s *LocalBlobStore) Put(ctx context.Context, r io.Reader, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := path.Join(s.now().Format("2006/01/02"), uuid.NewString()+ext)
	full := filepath.Join(s.dir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", upstreamError("blob store is unavailable: %v", err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", upstreamError("blob store is unavailable: %v", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", upstreamError("failed to store blob: %v", err)
	}
	if err := f.Close(); err != nil {
		return "", upstreamError("failed to store blob: %v", err)
	}
	return s.baseURL + "/" + rel, nil
}

func (s *LocalBlobStore) Resolve(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, ok := strings.CutPrefix(p, s.baseURL+"/")
	if !ok || rel == "" {
		return validationError("media path %q does not belong to the blob store", p)
	}
	if strings.Contains(rel, "\\") || path.Clean(rel) != rel || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return validationError("media path %q is not a clean blob path", p)
	}

	info, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return validationError("media path %q is not stored", p)
	}
	if err != nil {
		return upstreamError("blob store is unavailable: %v", err)
	}
	if !info.Mode().IsRegular() {
		return validationError("media path %q is not a file", p)
	}
	return nil
}

// DetectMediaKind определяет тип медиа по содержимому файла.
// Всё, что не картинка, звук или видео, считается документом
func DetectMediaKind(head []byte) (models.ContentKind, string) {
	mt := mimetype.Detect(head)
	mime := mt.String()
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.KindImage, mt.Extension()
	case strings.HasPrefix(mime, "audio/"):
		return models.KindAudio, mt.Extension()
	case strings.HasPrefix(mime, "video/"):
		return models.KindVideo, mt.Extension()
	}
	return models.KindDocument, mt.Extension()
}
