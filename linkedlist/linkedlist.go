// Package linkedlist 实现了一个节点对外可见的双向循环链表
//
// 与 container/list 的区别：
// - 节点可以在脱离链表后重新挂回表头（AddFirstNode），不需要重新分配
// - 节点携带时间戳，供缓存的年龄链表判断过期
// - 持有节点引用即可 O(1) 删除，不需要扫描链表
package linkedlist

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Node - 链表节点
// ============================================================
// Node 是链表中的一个元素
//
// 节点只能同时属于一个链表。Remove 之后节点的前后指针被清空，
// 可以通过 AddFirstNode 重新挂到某个链表的表头。
type Node struct {
	// Value 是节点承载的数据
	Value interface{}

	// Timestamp 记录节点的创建时间（年龄链表使用）
	Timestamp time.Time

	prev, next *Node
	list       *List
}

// Next 返回后一个节点，到达表尾时返回 nil
func (n *Node) Next() *Node {
	if n.list == nil || n.next == &n.list.head {
		return nil
	}
	return n.next
}

// Prev 返回前一个节点，到达表头时返回 nil
func (n *Node) Prev() *Node {
	if n.list == nil || n.prev == &n.list.head {
		return nil
	}
	return n.prev
}

// Remove 将节点从所在链表中摘除
// 对已经摘除的节点调用是空操作
func (n *Node) Remove() {
	if n.list == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.list.len--

	n.prev = nil
	n.next = nil
	n.list = nil
}

// String 返回节点值的字符串形式
func (n *Node) String() string {
	return fmt.Sprint(n.Value)
}

// ============================================================
// List - 双向循环链表
// ============================================================
// List 以哨兵节点 head 为锚点：
// - head.next 是第一个元素，head.prev 是最后一个元素
// - head.next == &head 表示链表为空
//
// 注意：List 不是并发安全的，需要外部同步
type List struct {
	head Node
	len  int
}

// New 创建一个空链表
func New() *List {
	return new(List).init()
}

func (l *List) init() *List {
	l.head.next = &l.head
	l.head.prev = &l.head
	l.len = 0
	return l
}

// lazyInit 使零值 List 可以直接使用
func (l *List) lazyInit() {
	if l.head.next == nil {
		l.init()
	}
}

// AddFirst 分配一个新节点并插入到表头
func (l *List) AddFirst(v interface{}) *Node {
	return l.AddFirstNode(&Node{Value: v})
}

// AddFirstNode 将一个已存在（且已摘除）的节点重新插入到表头
// 如果节点还挂在某个链表上，会先将它摘除
func (l *List) AddFirstNode(n *Node) *Node {
	l.lazyInit()
	if n.list != nil {
		n.Remove()
	}
	n.next = l.head.next
	n.prev = &l.head
	l.head.next.prev = n
	l.head.next = n
	n.list = l
	l.len++
	return n
}

// First 返回第一个节点，链表为空时返回 nil
func (l *List) First() *Node {
	if l.len == 0 {
		return nil
	}
	return l.head.next
}

// Last 返回最后一个节点，链表为空时返回 nil
func (l *List) Last() *Node {
	if l.len == 0 {
		return nil
	}
	return l.head.prev
}

// Len 返回链表中的节点数
func (l *List) Len() int {
	return l.len
}

// Clear 从表尾开始逐个摘除节点，直到链表为空
func (l *List) Clear() {
	l.lazyInit()
	for n := l.Last(); n != nil; n = l.Last() {
		n.Remove()
	}
	l.init()
}

// String 按表头到表尾的顺序输出，例如 "[a, b, c]"
func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for n := l.First(); n != nil; n = n.Next() {
		if n != l.head.next {
			b.WriteString(", ")
		}
		b.WriteString(n.String())
	}
	b.WriteByte(']')
	return b.String()
}
