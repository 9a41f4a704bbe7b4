package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_RunsJobs(t *testing.T) {
	p := NewPipeline(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	done := make(chan string, 3)
	require.True(t, p.Submit("panics", func(context.Context) { panic("boom") }))
	require.True(t, p.Submit("one", func(context.Context) { done <- "one" }))
	require.True(t, p.Submit("two", func(context.Context) { done <- "two" }))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-done:
			got[s] = true
		case <-time.After(5 * time.Second):
			t.Fatal("job never ran")
		}
	}
	assert.Equal(t, map[string]bool{"one": true, "two": true}, got)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_Full(t *testing.T) {
	p := NewPipeline(1, 1)
	// no workers are running, so the second job has nowhere to go
	assert.True(t, p.Submit("first", func(context.Context) {}))
	assert.False(t, p.Submit("second", func(context.Context) {}))
}
