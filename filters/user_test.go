package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mheily/go-kqueue/internal/kevent"
)

func TestMergeFflags(t *testing.T) {
	cases := []struct {
		name          string
		stored, input uint32
		want          uint32
	}{
		{"nop leaves stored untouched", 0x05, kevent.NOTE_FFNOP | 0x09, 0x05},
		{"and masks stored", 0x07, kevent.NOTE_FFAND | 0x03, 0x03},
		{"or sets additional bits", 0x01, kevent.NOTE_FFOR | 0x02, 0x03},
		{"copy replaces stored", 0xff, kevent.NOTE_FFCOPY | 0x04, 0x04},
		{"trigger bit is outside the value mask", 0x00, kevent.NOTE_FFCOPY | kevent.NOTE_TRIGGER | 0x01, 0x01},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, mergeFflags(c.stored, c.input))
		})
	}
}
