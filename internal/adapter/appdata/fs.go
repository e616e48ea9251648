package appdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/omigeot/server/internal/domain"
)

// FSStore is an app-scoped AppData rooted in an afero filesystem.
type FSStore struct {
	fs afero.Fs
}

// NewLocal stores app data under {root}/appdata_{instanceID}/{app} on disk.
func NewLocal(root, instanceID, app string) (*FSStore, error) {
	if err := validName(app); err != nil {
		return nil, err
	}
	dir := path.Join(root, "appdata_"+instanceID, app)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create app data dir %s: %w", dir, err)
	}
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewMemory keeps app data in process memory.
func NewMemory() *FSStore {
	return NewFS(afero.NewMemMapFs())
}

// NewFS wraps fsys, which must already be scoped to a single app.
func NewFS(fsys afero.Fs) *FSStore {
	return &FSStore{fs: fsys}
}

func (s *FSStore) GetFolder(_ context.Context, name string) (domain.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	info, err := s.fs.Stat("/" + name)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat folder %q: %w", name, err)
	}
	return &fsFolder{fs: s.fs, name: name}, nil
}

func (s *FSStore) NewFolder(_ context.Context, name string) (domain.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll("/"+name, 0o750); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	return &fsFolder{fs: s.fs, name: name}, nil
}

func (s *FSStore) GetDirectoryListing(_ context.Context) ([]domain.Folder, error) {
	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	var folders []domain.Folder
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, &fsFolder{fs: s.fs, name: e.Name()})
		}
	}
	return folders, nil
}

type fsFolder struct {
	fs   afero.Fs
	name string
}

func (f *fsFolder) Name() string { return f.name }

func (f *fsFolder) FileExists(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	info, err := f.fs.Stat(path.Join("/", f.name, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s/%s: %w", f.name, name, err)
	}
	return !info.IsDir(), nil
}

func (f *fsFolder) GetFile(ctx context.Context, name string) (domain.File, error) {
	ok, err := f.FileExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("file %s/%s: %w", f.name, name, domain.ErrNotFound)
	}
	return f.file(name)
}

func (f *fsFolder) NewFile(_ context.Context, name string) (domain.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	p := path.Join("/", f.name, name)
	if err := f.fs.MkdirAll("/"+f.name, 0o750); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", f.name, err)
	}
	if err := afero.WriteFile(f.fs, p, nil, 0o640); err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}
	return f.file(name)
}

func (f *fsFolder) GetDirectoryListing(_ context.Context) ([]domain.File, error) {
	entries, err := afero.ReadDir(f.fs, "/"+f.name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", f.name, err)
	}

	files := make([]domain.File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, &fsFile{fs: f.fs, path: path.Join(f.name, e.Name()), size: e.Size(), mtime: e.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	return files, nil
}

func (f *fsFolder) Delete(_ context.Context) error {
	if err := f.fs.RemoveAll("/" + f.name); err != nil {
		return fmt.Errorf("delete folder %q: %w", f.name, err)
	}
	return nil
}

func (f *fsFolder) file(name string) (*fsFile, error) {
	p := path.Join("/", f.name, name)
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return &fsFile{fs: f.fs, path: p, size: info.Size(), mtime: info.ModTime()}, nil
}

type fsFile struct {
	fs    afero.Fs
	path  string
	size  int64
	mtime time.Time
	head  []byte
}

func (f *fsFile) Name() string     { return path.Base(f.path) }
func (f *fsFile) Size() int64      { return f.size }
func (f *fsFile) MTime() time.Time { return f.mtime }

func (f *fsFile) MimeType() string {
	if f.head == nil {
		f.head = f.sniff()
	}
	return detectMimeType(f.Name(), f.head)
}

func (f *fsFile) GetContent(_ context.Context) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", f.path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, nil
}

// PutContent writes through a temp file and rename so readers never see a partial icon.
func (f *fsFile) PutContent(_ context.Context, data []byte) error {
	tmp := f.path + ".part"
	if err := afero.WriteFile(f.fs, tmp, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	f.size = int64(len(data))
	f.mtime = time.Now()
	f.head = sniffPrefix(data)
	return nil
}

func (f *fsFile) Delete(_ context.Context) error {
	err := f.fs.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", f.path, err)
	}
	return nil
}

func (f *fsFile) sniff() []byte {
	fh, err := f.fs.Open(f.path)
	if err != nil {
		return []byte{}
	}
	defer func() { _ = fh.Close() }()

	buf := make([]byte, sniffLen)
	n, _ := fh.Read(buf)
	return buf[:n]
}

// validName rejects names that would leave the app's directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("invalid app data name %q", name)
	}
	return nil
}
