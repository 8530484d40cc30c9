package rscodec

import (
	"bytes"
	"testing"
)

func TestReconstructAfterSingleShardLoss(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := bytes.Repeat([]byte("0123456789abcdef"), 64)
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lost := append([][]byte(nil), shards...)
	original := lost[1]
	lost[1] = nil

	ok, err := c.Reconstruct(lost)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !ok {
		t.Fatal("Reconstruct reported an inconsistent codeword")
	}
	if !bytes.Equal(lost[1], original) {
		t.Fatal("reconstructed shard does not match original")
	}
}

func TestReconstructFailsBeyondParityBudget(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := bytes.Repeat([]byte("x"), 256)
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 3; i++ {
		shards[i] = nil
	}
	ok, err := c.Reconstruct(shards)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if ok {
		t.Fatal("Reconstruct reported success with more shards lost than parity")
	}
}
