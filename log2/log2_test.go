package log2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		level  Level
		fun    func(l *Log)
		expect string
	}{
		{"debug-shown", LDebug, func(l *Log) { l.Debugf("var=%d", 42) }, "debug: var=42\n"},
		{"debug-filtered", LInfo, func(l *Log) { l.Debugf("var=%d", 42) }, ""},
		{"info", LInfo, func(l *Log) { l.Infof("state=%s", "ok") }, "state=ok\n"},
		{"info-filtered", LError, func(l *Log) { l.Info("quiet") }, ""},
		{"error", LError, func(l *Log) { l.Errorf("problem") }, "error: problem\n"},
		{"printf", LInfo, func(l *Log) { l.Printf("lib says %d", 1) }, "lib says 1\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(nil) // must not panic
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, c.level)
			l.SetFlags(0)
			c.fun(l)
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	ld := l.Clone(LDebug)
	ld.Debugf("visible")
	l.Debugf("hidden")
	assert.Equal(t, "debug: visible\n", buf.String())

	var nilLog *Log
	assert.Nil(t, nilLog.Clone(LDebug))
}

func TestSetLevel(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LError)
	l.SetFlags(0)
	assert.False(t, l.Enabled(LDebug))
	l.SetLevel(LDebug)
	assert.True(t, l.Enabled(LDebug))
	l.Debug("now")
	assert.Equal(t, "debug: now\n", buf.String())
}
