package codec

import (
	"sync"

	"github.com/wippyai/subscript/scale"
)

// poolMaxCap keeps oversized buffers out of the pool.
const poolMaxCap = 64 << 10

var writerPool = sync.Pool{
	New: func() any {
		return scale.NewWriter()
	},
}

func getWriter() *scale.Writer {
	return writerPool.Get().(*scale.Writer)
}

func putWriter(w *scale.Writer) {
	if w == nil || w.Cap() > poolMaxCap {
		return
	}
	w.Reset()
	writerPool.Put(w)
}
