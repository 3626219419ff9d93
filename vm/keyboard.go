package vm

import (
	"sync"
	"unicode/utf8"
)

// keyBuffer receives keys from the host while the program runs.
type keyBuffer struct {
	mu  sync.Mutex
	buf string
}

// Put appends keys.
func (k *keyBuffer) Put(keys string) {
	k.mu.Lock()
	k.buf += keys
	k.mu.Unlock()
}

// Get removes and returns the first key, or "".
func (k *keyBuffer) Get() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.buf == "" {
		return ""
	}
	_, n := utf8.DecodeRuneInString(k.buf)
	key := k.buf[:n]
	k.buf = k.buf[n:]
	return key
}

func (k *keyBuffer) Clear() {
	k.mu.Lock()
	k.buf = ""
	k.mu.Unlock()
}
