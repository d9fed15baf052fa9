package service

import (
	"sync"
	"time"
)

// Clock 抽象当前时间，测试中可替换
type Clock interface {
	Now() time.Time
}

// ClockFunc 把函数适配为 Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock 使用系统时间
var SystemClock Clock = ClockFunc(time.Now)

// timestamp 精度：数据库和 JSON 往返都不会丢失
const timestampPrecision = time.Microsecond

// eventClock 为事件分配时间戳：UTC、微秒精度、进程内严格递增。
// 系统时钟回拨或同一微秒内多次调用时，在上一个值基础上加 1µs。
type eventClock struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

func newEventClock(base Clock) *eventClock {
	return &eventClock{base: base}
}

func (c *eventClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.base.Now().UTC().Truncate(timestampPrecision)
	if !now.After(c.last) {
		now = c.last.Add(timestampPrecision)
	}
	c.last = now
	return now
}
