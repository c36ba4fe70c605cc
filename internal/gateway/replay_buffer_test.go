package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(es []ReplayEntry) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i] = e.Seq
	}
	return out
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}
	assert.Equal(t, []int64{3, 4, 5, 6, 7}, seqs(rb.Range(3, 7)))
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}
	require.Equal(t, 5, rb.Len())
	assert.Equal(t, []int64{4, 5, 6, 7, 8}, seqs(rb.Range(1, 10)))
	assert.Equal(t, []int64{6, 7}, seqs(rb.Range(6, 7)))
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	assert.Empty(t, rb.Range(1, 100))
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	b := []byte("abc")
	rb.Push(1, b)
	b[0] = 'x'
	assert.Equal(t, "abc", string(rb.Range(1, 1)[0].Data))
}
