package session

import "time"

// Clock abstracts time for the poll engine and inactivity monitor so tests
// can inject a fake.
type Clock interface {
	Now() time.Time
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the real time Clock.
func SystemClock() Clock { return realClock{} }
