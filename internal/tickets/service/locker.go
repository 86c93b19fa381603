package tickets

import (
	"context"
	"sync"
)

// DayLocker serialises the capacity check and the append for one calendar day.
// The returned function releases the lock.
type DayLocker interface {
	LockDay(ctx context.Context, day string) (func(), error)
}

// LocalDayLocker keeps one mutex per day key inside the process.
type LocalDayLocker struct {
	mu    sync.Mutex
	locks map[string]*dayLock
}

type dayLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalDayLocker() *LocalDayLocker {
	return &LocalDayLocker{locks: make(map[string]*dayLock)}
}

func (l *LocalDayLocker) LockDay(ctx context.Context, day string) (func(), error) {
	l.mu.Lock()
	dl, ok := l.locks[day]
	if !ok {
		dl = &dayLock{ch: make(chan struct{}, 1)}
		l.locks[day] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(day, dl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.ch
			l.release(day, dl)
		})
	}, nil
}

func (l *LocalDayLocker) release(day string, dl *dayLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, day)
	}
}
