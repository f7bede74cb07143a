package bufferpool

import "github.com/tuannm99/minidb/pkg/lrux"

type lruAdapter struct {
	l *lrux.LRU
}

func newLRUReplacer() Replacer {
	return &lruAdapter{l: lrux.New()}
}

func (a *lruAdapter) Unpin(frameID int) {
	a.l.Touch(frameID)
}

func (a *lruAdapter) Pin(frameID int) {
	a.l.Remove(frameID)
}

func (a *lruAdapter) Victim() (int, bool) {
	return a.l.Evict()
}

func (a *lruAdapter) Size() int {
	return a.l.Len()
}
