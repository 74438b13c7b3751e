package cache

import (
	"errors"
	"fmt"
	"time"
)

// Area 表示缓存根目录下的一个逻辑存储区。磁盘布局遵循：
//
//	<root>/cache/<fileName>       # 可淘汰区域，受容量阈值约束
//	<root>/permanent/<fileName>   # 永久区域，从不自动淘汰
//	<root>/.staging/fetch-*       # 下载中的临时文件
//
// 每个条目仅由文件本身组成，Size/ModTime 由文件系统提供，不维护额外索引。
type Area string

const (
	AreaCache     Area = "cache"
	AreaPermanent Area = "permanent"
)

// Areas 返回全部存储区，顺序固定（permanent 在前，与 Flush 结果字段一致）。
func Areas() []Area {
	return []Area{AreaPermanent, AreaCache}
}

// ParseArea 将外部输入转换为 Area，未知值返回 false。
func ParseArea(raw string) (Area, bool) {
	switch Area(raw) {
	case AreaCache, AreaPermanent:
		return Area(raw), true
	}
	return "", false
}

// Valid 判断 Area 是否为已知存储区。
func (a Area) Valid() bool {
	_, ok := ParseArea(string(a))
	return ok
}

// Entry 描述磁盘上的一个缓存文件。
type Entry struct {
	FileName      string    `json:"file_name"`
	Area          Area      `json:"area"`
	Path          string    `json:"path"`
	SizeBytes     int64     `json:"size_bytes"`
	LastTouchedAt time.Time `json:"last_touched_at"`
}

// StorageError 包装底层文件系统错误，并携带出错的路径。
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}

// ErrInvalidName 表示文件名无法安全地映射到存储区内的路径。
var ErrInvalidName = errors.New("invalid cache file name")

// ErrUnknownArea 表示传入了未定义的存储区。
var ErrUnknownArea = errors.New("unknown cache area")
