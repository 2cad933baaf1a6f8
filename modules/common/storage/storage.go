package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// TransientStore - 업로드 이미지를 모델 호출이 끝날 때까지만 로컬에 보관
// 경로: <baseDir>/<YYYY-MM-DD>/<id><ext>
type TransientStore struct {
	baseDir string
	now     func() time.Time
}

// NewTransientStore - 기본 디렉터리 생성 후 Store 반환
func NewTransientStore(baseDir string) (*TransientStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &TransientStore{baseDir: baseDir, now: time.Now}, nil
}

// Save - id 이름으로 저장, 같은 이름이 이미 있으면 실패 (O_EXCL)
func (s *TransientStore) Save(id, ext string, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, s.now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(dir, id+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close upload file: %w", err)
	}

	log.Printf("💾 [Storage] Saved upload: %s (%d bytes)", path, len(data))
	return path, nil
}

// Remove - 저장된 업로드 삭제 (이미 없으면 무시)
func (s *TransientStore) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  [Storage] Failed to remove upload %s: %v", path, err)
		return
	}
	log.Printf("🗑️  [Storage] Removed upload: %s", path)
}
