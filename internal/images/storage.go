package images

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore 图片落盘抽象，按车辆分目录存放。
type FileStore interface {
	Save(vehicleID, sourceURL, contentType string, data []byte) (string, error)
}

// DiskStore 本地磁盘实现。路径形如 <root>/<vehicleID>/<uuid>.<ext>。
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	if root == "" {
		root = "data/images"
	}
	return &DiskStore{root: root}
}

func (s *DiskStore) Save(vehicleID, sourceURL, contentType string, data []byte) (string, error) {
	dir := filepath.Join(s.root, vehicleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := uuid.NewString() + pickExt(sourceURL, contentType)
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	return full, nil
}

// pickExt 优先用源地址里的扩展名，没有就根据 Content-Type 猜一个。
func pickExt(sourceURL, contentType string) string {
	if ext := path.Ext(stripQuery(sourceURL)); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
