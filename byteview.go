package jivecache

import (
	"bytes"
	"io"
	"strings"
)

// ============================================================
// ByteView - 不可变字节视图
// ============================================================

// ByteView 持有一个不可变的字节视图，适合作为缓存值
// 内部可以是 []byte 或 string，这个细节对调用者透明
// ByteView 实现了 Cacheable，缓存无需估算它的大小
type ByteView struct {
	// b 非nil时使用b，否则使用s
	b []byte
	s string
}

// NewByteView 拷贝 b 并返回其视图
func NewByteView(b []byte) ByteView {
	return ByteView{b: cloneBytes(b)}
}

// StringView 返回字符串 s 的视图
func StringView(s string) ByteView {
	return ByteView{s: s}
}

// Len 返回视图的长度
func (v ByteView) Len() int {
	if v.b != nil {
		return len(v.b)
	}
	return len(v.s)
}

// CachedSize 实现 Cacheable
func (v ByteView) CachedSize() int {
	return sizeOfSlice + v.Len()
}

// ByteSlice 返回数据的字节切片副本
func (v ByteView) ByteSlice() []byte {
	if v.b != nil {
		return cloneBytes(v.b)
	}
	return []byte(v.s)
}

// String 返回数据的字符串形式
func (v ByteView) String() string {
	if v.b != nil {
		return string(v.b)
	}
	return v.s
}

// At 返回索引i处的字节
func (v ByteView) At(i int) byte {
	if v.b != nil {
		return v.b[i]
	}
	return v.s[i]
}

// Slice 返回v[from:to]的新视图
func (v ByteView) Slice(from, to int) ByteView {
	if v.b != nil {
		return ByteView{b: v.b[from:to]}
	}
	return ByteView{s: v.s[from:to]}
}

// Equal 判断两个ByteView的内容是否相等
func (v ByteView) Equal(o ByteView) bool {
	if v.b == nil && o.b == nil {
		return v.s == o.s
	}
	if v.b != nil && o.b != nil {
		return bytes.Equal(v.b, o.b)
	}
	return v.String() == o.String()
}

// Reader 返回一个io.ReadSeeker用于读取字节
func (v ByteView) Reader() io.ReadSeeker {
	if v.b != nil {
		return bytes.NewReader(v.b)
	}
	return strings.NewReader(v.s)
}

// WriteTo 实现io.WriterTo接口
func (v ByteView) WriteTo(w io.Writer) (n int64, err error) {
	var m int
	if v.b != nil {
		m, err = w.Write(v.b)
	} else {
		m, err = io.WriteString(w, v.s)
	}
	if err == nil && m < v.Len() {
		err = io.ErrShortWrite
	}
	n = int64(m)
	return
}

// cloneBytes 克隆字节切片
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
