package fsys

import (
	"errors"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// maxLinkHops bounds symbolic link resolution.
const maxLinkHops = 8

// Mem is an in-memory FileSystem. The zero value is not usable, use NewMem.
type Mem struct {
	mu    sync.Mutex
	nodes map[string]*memNode
}

type memNode struct {
	dir  bool
	link string // target when the node is a symbolic link
	data []byte
}

var _ FileSystem = (*Mem)(nil)

// NewMem returns an empty in-memory filesystem. "/" and "." always exist.
func NewMem() *Mem {
	return &Mem{nodes: make(map[string]*memNode)}
}

// MakeDir implements FileSystem.
func (m *Mem) MakeDir(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = filepath.Clean(dir)
	var missing []string
	for p := dir; !isRoot(p); p = filepath.Dir(p) {
		n, ok := m.nodes[p]
		if ok {
			if !n.dir {
				return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
			}
			break
		}
		missing = append(missing, p)
	}
	for _, p := range missing {
		m.nodes[p] = &memNode{dir: true}
	}
	return nil
}

// Rename implements FileSystem.
func (m *Mem) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath = filepath.Clean(oldPath)
	newPath = filepath.Clean(newPath)
	n, ok := m.nodes[oldPath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	if oldPath == newPath {
		return nil
	}
	if !m.isDirLocked(filepath.Dir(newPath)) {
		return &fs.PathError{Op: "rename", Path: newPath, Err: fs.ErrNotExist}
	}
	if dst, ok := m.nodes[newPath]; ok && (dst.dir || n.dir) {
		return &fs.PathError{Op: "rename", Path: newPath, Err: fs.ErrExist}
	}
	if n.dir && strings.HasPrefix(newPath, oldPath+string(filepath.Separator)) {
		return &fs.PathError{Op: "rename", Path: newPath, Err: fs.ErrInvalid}
	}
	delete(m.nodes, oldPath)
	m.nodes[newPath] = n
	if n.dir {
		prefix := oldPath + string(filepath.Separator)
		moved := make(map[string]*memNode)
		for p, child := range m.nodes {
			if strings.HasPrefix(p, prefix) {
				moved[newPath+string(filepath.Separator)+p[len(prefix):]] = child
				delete(m.nodes, p)
			}
		}
		maps.Copy(m.nodes, moved)
	}
	return nil
}

// Exists implements FileSystem.
func (m *Mem) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	_, ok := m.nodes[path]
	return ok || isRoot(path)
}

// ReadDir implements FileSystem.
func (m *Mem) ReadDir(dir string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = filepath.Clean(dir)
	if !m.isDirLocked(dir) {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}
	var entries []fs.DirEntry
	for p, n := range m.nodes {
		if filepath.Dir(p) == dir && p != dir {
			entries = append(entries, &memEntry{name: filepath.Base(p), node: n})
		}
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

// ReadFile implements FileSystem.
func (m *Mem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(path)
	for range maxLinkHops {
		n, ok := m.nodes[p]
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
		}
		if n.dir {
			return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrInvalid}
		}
		if n.link == "" {
			return slices.Clone(n.data), nil
		}
		target := n.link
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(p), target)
		}
		p = filepath.Clean(target)
	}
	return nil, &fs.PathError{Op: "open", Path: path, Err: errTooManyLinks}
}

// WriteFile implements FileSystem.
func (m *Mem) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if !m.isDirLocked(filepath.Dir(path)) {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if n, ok := m.nodes[path]; ok && n.dir {
		return &fs.PathError{Op: "open", Path: path, Err: fs.ErrInvalid}
	}
	m.nodes[path] = &memNode{data: slices.Clone(data)}
	return nil
}

// Symlink implements FileSystem.
func (m *Mem) Symlink(target, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link = filepath.Clean(link)
	if !m.isDirLocked(filepath.Dir(link)) {
		return &fs.PathError{Op: "symlink", Path: link, Err: fs.ErrNotExist}
	}
	if n, ok := m.nodes[link]; ok && n.dir {
		return &fs.PathError{Op: "symlink", Path: link, Err: fs.ErrExist}
	}
	m.nodes[link] = &memNode{link: target}
	return nil
}

// Readlink implements FileSystem.
func (m *Mem) Readlink(link string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[filepath.Clean(link)]
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: link, Err: fs.ErrNotExist}
	}
	if n.link == "" {
		return "", &fs.PathError{Op: "readlink", Path: link, Err: fs.ErrInvalid}
	}
	return n.link, nil
}

// Remove deletes path and everything below it. It exists so tests can
// simulate external tampering such as a dangling link.
func (m *Mem) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)
	for p := range m.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.nodes, p)
		}
	}
}

func (m *Mem) isDirLocked(p string) bool {
	if isRoot(p) {
		return true
	}
	n, ok := m.nodes[p]
	return ok && n.dir
}

func isRoot(p string) bool {
	return p == "." || p == string(filepath.Separator) || filepath.Dir(p) == p
}

//

var errTooManyLinks = errors.New("too many levels of symbolic links")

// memEntry implements fs.DirEntry and fs.FileInfo.
type memEntry struct {
	name string
	node *memNode
}

func (e *memEntry) Name() string               { return e.name }
func (e *memEntry) IsDir() bool                { return e.node.dir }
func (e *memEntry) Type() fs.FileMode          { return e.Mode().Type() }
func (e *memEntry) Info() (fs.FileInfo, error) { return e, nil }
func (e *memEntry) Size() int64                { return int64(len(e.node.data)) }
func (e *memEntry) ModTime() time.Time         { return time.Time{} }
func (e *memEntry) Sys() any                   { return nil }

func (e *memEntry) Mode() fs.FileMode {
	switch {
	case e.node.dir:
		return fs.ModeDir | 0o755
	case e.node.link != "":
		return fs.ModeSymlink | 0o777
	default:
		return 0o644
	}
}
