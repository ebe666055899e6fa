// Package mempool keeps size-classed pools of byte buffers so the preview
// loop does not allocate a fresh rotation buffer for every frame.
package mempool

import (
	"sync"
)

const classStep = 4096

var bytePools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of classStep.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	r := (n + classStep - 1) / classStep
	return r * classStep
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]byte, cls)
		return &buf
	}})
	p, _ := pAny.(*sync.Pool)
	return p
}

// GetBytes returns a buffer of length n. Contents are not zeroed.
// The caller returns it with PutBytes when done.
func GetBytes(n int) []byte {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	p := poolFor(cls)
	if p == nil {
		return make([]byte, n, cls)
	}
	bufPtr, ok := p.Get().(*[]byte)
	if !ok || cap(*bufPtr) < cls {
		buf := make([]byte, cls)
		return buf[:n]
	}
	return (*bufPtr)[:n]
}

// PutBytes returns a buffer obtained from GetBytes. Nil and foreign
// buffers whose capacity is not a size class are dropped.
func PutBytes(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c < classStep || c%classStep != 0 {
		return
	}
	p := poolFor(c)
	if p == nil {
		return
	}
	buf = buf[:c]
	p.Put(&buf)
}
