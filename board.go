package main

import "sync"

// Board tracks the last color seen for every pixel id. The publication
// handler writes to it and the watcher reads from it, so all access goes
// through the mutex.
type Board struct {
	mu     sync.RWMutex
	colors map[int]string
}

func newBoard() *Board {
	return &Board{colors: make(map[int]string)}
}

func (b *Board) Get(id int) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	color, ok := b.colors[id]
	return color, ok
}

func (b *Board) Set(id int, color string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.colors[id] = color
}

// Apply folds a snapshot into the board. Pixels missing from the snapshot
// keep their previous color.
func (b *Board) Apply(s Snapshot) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for color, ids := range s {
		for _, id := range ids {
			b.colors[id] = color
			n++
		}
	}
	return n
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.colors)
}
