package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/rankcache"
)

func TestAssemblePageTieRanks(t *testing.T) {
	entries := []rankcache.Entry{
		{PlayerID: 4, Time: 28_000},
		{PlayerID: 1, Time: 30_000},
		{PlayerID: 2, Time: 30_000},
		{PlayerID: 3, Time: 32_000},
	}
	resolved := map[uint32]domain.LeaderboardRow{
		1: {PlayerID: 1, Login: "ahmad"},
		2: {PlayerID: 2, Login: "riolu"},
		3: {PlayerID: 3, Login: "smokegun"},
		4: {PlayerID: 4, Login: "speed"},
	}

	rows := AssemblePage(0, 1, entries, resolved)

	assert.Len(t, rows, 4)
	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, int64(2), rows[1].Rank)
	assert.Equal(t, int64(2), rows[2].Rank)
	// the next distinct time lands on 4, not 3
	assert.Equal(t, int64(4), rows[3].Rank)
	assert.Equal(t, "speed", rows[0].Login)
	assert.Equal(t, int64(32_000), rows[3].Time)
}

func TestAssemblePageOffsetRanks(t *testing.T) {
	// the second page of a board: firstRank carries the tie state across
	// the page boundary.
	entries := []rankcache.Entry{
		{PlayerID: 5, Time: 30_000},
		{PlayerID: 6, Time: 33_000},
	}
	resolved := map[uint32]domain.LeaderboardRow{
		5: {PlayerID: 5, Login: "aurel"},
		6: {PlayerID: 6, Login: "nino"},
	}

	rows := AssemblePage(10, 9, entries, resolved)

	assert.Equal(t, int64(9), rows[0].Rank)
	assert.Equal(t, int64(12), rows[1].Rank)
}

func TestAssemblePageSkipsUnresolvedPlayers(t *testing.T) {
	entries := []rankcache.Entry{
		{PlayerID: 1, Time: 30_000},
		{PlayerID: 2, Time: 31_000},
	}
	resolved := map[uint32]domain.LeaderboardRow{
		2: {PlayerID: 2, Login: "riolu"},
	}

	rows := AssemblePage(0, 1, entries, resolved)

	assert.Len(t, rows, 1)
	assert.Equal(t, "riolu", rows[0].Login)
	assert.Equal(t, int64(2), rows[0].Rank)
}
