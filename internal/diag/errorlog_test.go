package diag

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorLogAppends(t *testing.T) {
	l := NewErrorLog(0)
	l.Record(errors.New("ReferenceError: f is not defined"))
	l.Record(nil)
	l.Add("TypeError: x is undefined", "https://example.test/app.js:10")

	assert.Equal(t, []string{"ReferenceError: f is not defined", "TypeError: x is undefined"}, l.Messages())
	entries := l.Entries()
	assert.Equal(t, "https://example.test/app.js:10", entries[1].Source)
	assert.False(t, entries[0].Time.IsZero())
}

func TestErrorLogLimit(t *testing.T) {
	l := NewErrorLog(3)
	for i := 0; i < 5; i++ {
		l.Add(fmt.Sprintf("e%d", i), "")
	}
	assert.Equal(t, []string{"e2", "e3", "e4"}, l.Messages())
	assert.Equal(t, 2, l.Dropped())

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.Dropped())
}

func TestErrorLogConcurrent(t *testing.T) {
	l := NewErrorLog(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Add("boom", "")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, l.Len())
}
