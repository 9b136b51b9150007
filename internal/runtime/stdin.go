package runtime

import (
	"io"
	"sync"
	"sync/atomic"
)

// Feeds a process's stdin and reports when the source is finished.
//
// The containerd shim keeps both ends of the stdin FIFO open, so the exec
// never sees EOF on its own; the caller waits on done and then either closes
// the process's stdin (clean EOF) or kills the process (read error). The
// byte count is kept for logging tar transfers.
type stdinFeed struct {
	src  io.Reader
	n    atomic.Int64
	once sync.Once
	err  error // Non-EOF read error. Set before done is closed.
	done chan struct{}
}

func newStdinFeed(src io.Reader) *stdinFeed {
	return &stdinFeed{src: src, done: make(chan struct{})}
}

// Reads from the source. The first error, EOF included, closes done.
func (f *stdinFeed) Read(p []byte) (int, error) {
	n, err := f.src.Read(p)
	f.n.Add(int64(n))
	if err != nil {
		f.once.Do(func() {
			if err != io.EOF {
				f.err = err
			}
			close(f.done)
		})
	}
	return n, err
}

// Returns the read error that ended the feed, or nil when the source reached
// EOF. Only meaningful once done is closed.
func (f *stdinFeed) Err() error {
	return f.err
}

// Returns the number of bytes read so far.
func (f *stdinFeed) Len() int64 {
	return f.n.Load()
}
