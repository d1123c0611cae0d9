package clock

import (
	"sync"
	"time"
)

// Clock 当前时间来源，所有依赖"现在"的业务逻辑通过它取时
type Clock interface {
	Now() time.Time
}

// System 系统时钟
type System struct{}

// Now 返回系统当前时间
func (System) Now() time.Time { return time.Now() }

// Mock 可手动推进的测试时钟，并发安全
type Mock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMock 创建固定在 t 的测试时钟
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now 返回模拟的当前时间
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set 将时钟拨到 t
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance 将时钟向前推进 d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
