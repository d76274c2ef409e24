package api

import (
	"sync/atomic"
	"time"
)

var lastStamp int64

// nextTimestamp returns a strictly increasing nanosecond stamp for outbound
// frames, so broadcasts produced in the same instant still have a total order.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastStamp, last, now) {
			return now
		}
	}
}
