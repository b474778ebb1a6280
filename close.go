package exprvec

import "io"

// Close releases resources held by this pipeline.
//
// The blob store is closed if it supports closing; stores backed by
// plain directories or remote buckets hold nothing and Close is a no-op.
func (ev *Exprvec) Close() error {
	if ev == nil {
		return nil
	}
	if c, ok := ev.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
