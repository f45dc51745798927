package logger

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRecorderLifecycle(t *testing.T) {
	r := NewSessionRecorder(0)
	r.Start("first")
	_, err := r.Write([]byte("one\n"))
	assert.NoError(t, err)
	assert.Equal(t, "one\n", r.Text())
	assert.Equal(t, "first", r.Session())
	assert.False(t, r.Started().IsZero())

	r.Start("second")
	assert.Equal(t, "", r.Text())
	assert.Equal(t, "second", r.Session())
	r.Write([]byte("two\n"))
	assert.Equal(t, "two\n", r.Text())
}

func TestSessionRecorderLimit(t *testing.T) {
	r := NewSessionRecorder(5)
	r.Start("s")
	n, err := r.Write([]byte("abcdefgh"))
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "abcde", r.Text())
	assert.Equal(t, 3, r.Dropped())

	n, err = r.Write([]byte("ij"))
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, r.Dropped())
}

func TestSessionRecorderAsSink(t *testing.T) {
	r := NewSessionRecorder(0)
	r.Start("s")
	l := NewConsoleLogger(LevelNone)
	l.SetSink(r, LevelDebug)
	l.WithPrefix("[dns]").Debug("resolved %s", "example.com")
	l.Trace("hidden")

	text := r.Text()
	assert.Contains(t, text, "[DEBUG] [dns] resolved example.com")
	assert.NotContains(t, text, "hidden")
	assert.NotContains(t, text, "\x1b[")
}

func TestSessionRecorderConcurrentWrites(t *testing.T) {
	r := NewSessionRecorder(0)
	r.Start("s")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Write([]byte("x\n"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, strings.Count(r.Text(), "x\n"))
}
