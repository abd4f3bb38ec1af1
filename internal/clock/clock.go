// Package clock 抽象当前时间，便于测试过期与排序。
package clock

import (
	"sync"
	"time"
)

// Clock 返回当前时间。
type Clock interface {
	Now() time.Time
}

// Real 以微秒精度读取 time.Now，与 PostgreSQL 的时间精度一致。
type Real struct{}

func (Real) Now() time.Time { return time.Now().Truncate(time.Microsecond) }

// Monotonic 包装 Clock，保证每次返回的时间严格递增，同一操作内写入的记录保持插入顺序。
type Monotonic struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

func NewMonotonic(base Clock) *Monotonic {
	return &Monotonic{base: base}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.base.Now()
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}

// Fake 为测试用的手动推进时钟。
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
