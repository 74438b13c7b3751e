package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const (
	dirPerm       = 0o755
	stagingDir    = ".staging"
	listBatchSize = 128
)

// Manager 以 root 为根目录管理 cache/permanent 两个存储区，整个进程复用一份实例。
type Manager struct {
	root string
}

// NewManager 解析并创建根目录；存储区目录本身延迟到首次写入时创建。
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, errors.New("storage root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, newStorageError("mkdir", abs, err)
	}

	return &Manager{root: abs}, nil
}

// Root 返回绝对路径形式的根目录。
func (m *Manager) Root() string {
	return m.root
}

// AreaDir 返回存储区目录路径，不保证目录存在。
func (m *Manager) AreaDir(area Area) string {
	return filepath.Join(m.root, string(area))
}

// Path 返回条目的最终路径，不做存在性检查。
func (m *Manager) Path(area Area, name string) string {
	return filepath.Join(m.AreaDir(area), name)
}

// EnsureArea 幂等地创建存储区目录并返回其路径。
func (m *Manager) EnsureArea(area Area) (string, error) {
	if !area.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownArea, area)
	}
	dir := m.AreaDir(area)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", newStorageError("mkdir", dir, err)
	}
	return dir, nil
}

// ListEntries 惰性遍历存储区内的文件。每次调用都会重新读取目录；
// 目录不存在视为空区域。遍历期间被并发删除的文件会被跳过。
func (m *Manager) ListEntries(area Area) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if !area.Valid() {
			yield(Entry{}, fmt.Errorf("%w: %q", ErrUnknownArea, area))
			return
		}
		dir := m.AreaDir(area)
		f, err := os.Open(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(Entry{}, newStorageError("open", dir, err))
			return
		}
		defer f.Close()

		for {
			batch, readErr := f.ReadDir(listBatchSize)
			for _, d := range batch {
				if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
					continue
				}
				info, err := d.Info()
				if err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						continue
					}
					if !yield(Entry{}, newStorageError("stat", filepath.Join(dir, d.Name()), err)) {
						return
					}
					continue
				}
				if !info.Mode().IsRegular() {
					continue
				}
				if !yield(m.entryFromInfo(area, info), nil) {
					return
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					yield(Entry{}, newStorageError("readdir", dir, readErr))
				}
				return
			}
		}
	}
}

// Entries 收集 ListEntries 的结果，遇到第一个错误即返回。
func (m *Manager) Entries(area Area) ([]Entry, error) {
	var entries []Entry
	for entry, err := range m.ListEntries(area) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AreaSize 返回存储区内所有条目的字节总和。
func (m *Manager) AreaSize(area Area) (int64, error) {
	var total int64
	for entry, err := range m.ListEntries(area) {
		if err != nil {
			return 0, err
		}
		total += entry.SizeBytes
	}
	return total, nil
}

// Exists 判断条目是否存在；目录等非普通文件视为不存在。
func (m *Manager) Exists(area Area, name string) (bool, error) {
	_, err := m.Stat(area, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Stat 返回单个条目的元数据，不存在时错误满足 errors.Is(err, fs.ErrNotExist)。
func (m *Manager) Stat(area Area, name string) (Entry, error) {
	filePath, err := m.entryPath(area, name)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return Entry{}, newStorageError("stat", filePath, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, newStorageError("stat", filePath, fs.ErrNotExist)
	}
	return m.entryFromInfo(area, info), nil
}

// Touch 更新条目的 ModTime，用于命中时刷新 LRU 顺序。
func (m *Manager) Touch(area Area, name string, at time.Time) error {
	filePath, err := m.entryPath(area, name)
	if err != nil {
		return err
	}
	if err := os.Chtimes(filePath, at, at); err != nil {
		return newStorageError("chtimes", filePath, err)
	}
	return nil
}

// Remove 删除单个条目；返回 true 表示确实删除了文件，文件不存在不是错误。
func (m *Manager) Remove(area Area, name string) (bool, error) {
	filePath, err := m.entryPath(area, name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, newStorageError("remove", filePath, err)
	}
	return true, nil
}

// RemoveArea 整体删除存储区目录；仅当目录中原本有内容时返回 true。
func (m *Manager) RemoveArea(area Area) (bool, error) {
	if !area.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownArea, area)
	}
	dir := m.AreaDir(area)
	children, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, newStorageError("readdir", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, newStorageError("remove_all", dir, err)
	}
	return len(children) > 0, nil
}

// CreateTemp 在暂存目录中创建下载用临时文件，调用方负责 Commit 或 Discard。
func (m *Manager) CreateTemp() (*os.File, error) {
	dir := filepath.Join(m.root, stagingDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, newStorageError("mkdir", dir, err)
	}
	f, err := os.CreateTemp(dir, "fetch-*")
	if err != nil {
		return nil, newStorageError("create_temp", dir, err)
	}
	return f, nil
}

// Commit 通过原子 rename 将已关闭的临时文件发布到存储区，失败时清理临时文件。
func (m *Manager) Commit(tmpPath string, area Area, name string) (Entry, error) {
	filePath, err := m.entryPath(area, name)
	if err != nil {
		m.Discard(tmpPath)
		return Entry{}, err
	}
	if _, err := m.EnsureArea(area); err != nil {
		m.Discard(tmpPath)
		return Entry{}, err
	}
	if err := atomic.ReplaceFile(tmpPath, filePath); err != nil {
		m.Discard(tmpPath)
		return Entry{}, newStorageError("rename", filePath, err)
	}
	return m.Stat(area, name)
}

// Discard 删除未发布的临时文件，忽略已不存在的情况。
func (m *Manager) Discard(tmpPath string) {
	if tmpPath == "" {
		return
	}
	_ = os.Remove(tmpPath)
}

// PurgeStaging 清理上次进程遗留的临时文件，返回删除的数量。
func (m *Manager) PurgeStaging() (int, error) {
	dir := filepath.Join(m.root, stagingDir)
	children, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, newStorageError("readdir", dir, err)
	}
	removed := 0
	for _, child := range children {
		if err := os.RemoveAll(filepath.Join(dir, child.Name())); err != nil {
			return removed, newStorageError("remove", filepath.Join(dir, child.Name()), err)
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) entryPath(area Area, name string) (string, error) {
	if !area.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownArea, area)
	}
	if name == "" || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return m.Path(area, name), nil
}

func (m *Manager) entryFromInfo(area Area, info fs.FileInfo) Entry {
	return Entry{
		FileName:      info.Name(),
		Area:          area,
		Path:          m.Path(area, info.Name()),
		SizeBytes:     info.Size(),
		LastTouchedAt: info.ModTime(),
	}
}
