package postgres

import (
	"context"
	"testing"
)

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz", PoolOptions{})
	if err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
