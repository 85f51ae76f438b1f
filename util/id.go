package util

import "sync/atomic"

var (
	_id int64
)

// generate next unique identifier (unique in the running process/application)
func NextID() int {
	return int(atomic.AddInt64(&_id, 1))
}
