package mainthread

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineMarker parses the current goroutine id from the stack header.
func goroutineMarker() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseInt(string(buf), 10, 64)
	return id
}
