package helpers

import (
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/alive/v2"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{errors.Errorf("one"), nil, errors.Errorf("two")})
	assert.Equal(t, "one\ntwo", err.Error())
}

func TestWithLock(t *testing.T) {
	t.Parallel()
	var lk sync.Mutex
	n := 0
	WithLock(&lk, func() { n++ })
	assert.Equal(t, 1, n)
	assert.NoError(t, WithLockError(&lk, func() error { return nil }))
}

func TestIntDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 15*time.Second, IntSecondDefault(0, 15*time.Second))
	assert.Equal(t, 3*time.Second, IntSecondDefault(3, 15*time.Second))
	assert.Equal(t, 20*time.Millisecond, IntMillisecondDefault(0, 20*time.Millisecond))
	assert.Equal(t, 5*time.Millisecond, IntMillisecondDefault(5, 20*time.Millisecond))
}

func TestAliveSub(t *testing.T) {
	t.Parallel()
	root := alive.NewAlive()
	leaf := alive.NewAlive()
	go AliveSub(root, leaf)
	root.Stop()
	leaf.Wait()
	assert.True(t, leaf.IsFinished())
}
