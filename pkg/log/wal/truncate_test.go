package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ariesdb/pkg/primitives"
)

func TestSafeTruncationLSNReturnsNoLSNWhenNothingConstrainsIt(t *testing.T) {
	got := SafeTruncationLSN(nil, nil)
	assert.Equal(t, primitives.NoLSN, got)
}

func TestSafeTruncationLSNUsesOldestDirtyPageWhenNoActiveTransactions(t *testing.T) {
	dpt := map[primitives.PageID]primitives.LSN{
		{Part: 1, Page: 1}: 50,
		{Part: 1, Page: 2}: 20,
		{Part: 2, Page: 1}: 80,
	}
	got := SafeTruncationLSN(dpt, nil)
	assert.Equal(t, primitives.LSN(20), got)
}

func TestSafeTruncationLSNUsesOldestActiveTransactionWhenNoDirtyPages(t *testing.T) {
	got := SafeTruncationLSN(nil, []primitives.LSN{100, 30, 70})
	assert.Equal(t, primitives.LSN(30), got)
}

func TestSafeTruncationLSNTakesTheSmallerOfBothFloors(t *testing.T) {
	dpt := map[primitives.PageID]primitives.LSN{
		{Part: 1, Page: 1}: 40,
	}
	got := SafeTruncationLSN(dpt, []primitives.LSN{15, 60})
	assert.Equal(t, primitives.LSN(15), got)

	got = SafeTruncationLSN(dpt, []primitives.LSN{45, 60})
	assert.Equal(t, primitives.LSN(40), got)
}
