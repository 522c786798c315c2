package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemStore implements Store on the local filesystem. Keys map to
// relative file paths under the root; a sidecar file (key + ".meta") stores
// content type and user metadata. Not safe for concurrent writers beyond
// per-file creation.
type FilesystemStore struct {
	root string
}

// NewFilesystem returns a filesystem-backed store rooted at path, creating
// it if needed.
func NewFilesystem(root string) (*FilesystemStore, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) Driver() Driver { return DriverFilesystem }

// sanitizeKey forbids path traversal and absolute paths.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *FilesystemStore) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	metaPath = dataPath + ".meta"
	return
}

type fsMeta struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Put stores a new blob; fails when the key already exists.
func (s *FilesystemStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}
	f, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return Info{}, fmt.Errorf("object %s already exists", key)
		}
		return Info{}, err
	}
	_, err = io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(dataPath)
		return Info{}, err
	}
	if closeErr != nil {
		_ = os.Remove(dataPath)
		return Info{}, closeErr
	}
	meta := fsMeta{ContentType: opts.ContentType, Metadata: cloneMetadata(opts.Metadata)}
	payload, err := json.Marshal(meta)
	if err != nil {
		_ = os.Remove(dataPath)
		return Info{}, err
	}
	if err := os.WriteFile(metaPath, payload, 0o644); err != nil {
		_ = os.Remove(dataPath)
		return Info{}, err
	}
	return s.infoFor(key, dataPath, meta)
}

func (s *FilesystemStore) infoFor(key, dataPath string, meta fsMeta) (Info, error) {
	stat, err := os.Stat(dataPath)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  meta.ContentType,
		Metadata:     cloneMetadata(meta.Metadata),
		LastModified: stat.ModTime().UTC(),
	}, nil
}

func (s *FilesystemStore) readMeta(metaPath string) (fsMeta, error) {
	payload, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fsMeta{}, nil
		}
		return fsMeta{}, err
	}
	var meta fsMeta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return fsMeta{}, err
	}
	return meta, nil
}

func (s *FilesystemStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, nil, err
	}
	meta, err := s.readMeta(metaPath)
	if err != nil {
		return Info{}, nil, err
	}
	info, err := s.infoFor(key, dataPath, meta)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return Info{}, nil, err
	}
	return info, f, nil
}

func (s *FilesystemStore) Head(ctx context.Context, key string) (Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	meta, err := s.readMeta(metaPath)
	if err != nil {
		return Info{}, err
	}
	return s.infoFor(key, dataPath, meta)
}

func (s *FilesystemStore) Delete(ctx context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

func (s *FilesystemStore) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".meta") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := s.readMeta(path + ".meta")
		if err != nil {
			return err
		}
		info, err := s.infoFor(key, path, meta)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a file:// URL; filesystem blobs have no expiry support.
func (s *FilesystemStore) PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dataPath); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
