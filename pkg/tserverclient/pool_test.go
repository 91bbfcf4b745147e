package tserverclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolGetRequiresAddrOnFirstDial(t *testing.T) {
	p := NewPool(t.TempDir())
	_, err := p.Get("ts-1", "")
	assert.Error(t, err, "Get should fail when no address is known and nothing is cached yet")
}

func TestPoolForgetUnknownUUIDIsNoop(t *testing.T) {
	p := NewPool(t.TempDir())
	p.Forget("never-dialed")
}

func TestPoolCloseOnEmptyPool(t *testing.T) {
	p := NewPool(t.TempDir())
	assert.NoError(t, p.Close())
}
