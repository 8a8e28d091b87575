package jivecache

import (
	"encoding/gob"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
)

// ============================================================
// Cacheable - 自报大小的缓存值
// ============================================================

// Cacheable 由能够报告自身近似字节大小的值实现
// 缓存会直接使用 CachedSize 的结果，不再做任何估算
type Cacheable interface {
	CachedSize() int
}

// SizerFunc 估算一个值的近似字节大小
type SizerFunc func(v interface{}) (int, error)

// 近似的内存开销常量（64 位平台）
const (
	sizeOfObject = 16 // interface 头
	sizeOfString = 16 // string 头
	sizeOfSlice  = 24 // slice 头
	sizeOfTime   = 24 // time.Time
)

// ============================================================
// SizeOf - 估算值的大小
// ============================================================

// SizeOf 估算 v 的近似字节大小
//
// 估算顺序：
// 1. 实现了 Cacheable 的值直接报告
// 2. proto.Message 使用编码后的长度
// 3. 已知的标量和切片类型使用固定公式
// 4. 其余类型编码到计数器中，以编码长度作为大小（代价较高）
func SizeOf(v interface{}) (int, error) {
	if n, ok := sizeOfKnown(v); ok {
		return n, nil
	}
	return sizeOfEncoded(v)
}

// SizeOfKnown 与 SizeOf 相同，但不会走编码兜底
// 无法识别的类型返回错误
func SizeOfKnown(v interface{}) (int, error) {
	if n, ok := sizeOfKnown(v); ok {
		return n, nil
	}
	return 0, fmt.Errorf("cannot calculate size of %T", v)
}

func sizeOfKnown(v interface{}) (int, bool) {
	switch x := v.(type) {
	case nil:
		return sizeOfObject, true
	case Cacheable:
		return x.CachedSize(), true
	case proto.Message:
		return sizeOfObject + proto.Size(x), true
	case bool, int8, uint8:
		return sizeOfObject + 1, true
	case int16, uint16:
		return sizeOfObject + 2, true
	case int32, uint32, float32:
		return sizeOfObject + 4, true
	case int, uint, int64, uint64, float64, uintptr, time.Duration:
		return sizeOfObject + 8, true
	case complex128:
		return sizeOfObject + 16, true
	case string:
		return sizeOfString + len(x), true
	case []byte:
		return sizeOfSlice + len(x), true
	case []int64:
		return sizeOfSlice + 8*len(x), true
	case []int:
		return sizeOfSlice + 8*len(x), true
	case []string:
		n := sizeOfSlice
		for _, s := range x {
			n += sizeOfString + len(s)
		}
		return n, true
	case time.Time:
		return sizeOfTime, true
	}
	return 0, false
}

// sizeOfEncoded 将值编码到计数器中，返回编码长度
func sizeOfEncoded(v interface{}) (int, error) {
	var w countingWriter
	if err := gob.NewEncoder(&w).Encode(v); err != nil {
		return 0, fmt.Errorf("cannot calculate size of %T: %w", v, err)
	}
	return sizeOfObject + w.n, nil
}

// countingWriter 只统计写入的字节数，丢弃内容
type countingWriter struct {
	n int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}
