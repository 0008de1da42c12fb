package hap

import "io"

// ProgressFunc receives byte progress for a transfer. total is -1 when the
// total size is unknown.
type ProgressFunc func(transferred, total int64)

// countingReader reports read progress through a ProgressFunc.
type countingReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
}

func newCountingReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &countingReader{r: r, total: total, fn: fn}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		c.fn(c.done, c.total)
	}
	return n, err
}
