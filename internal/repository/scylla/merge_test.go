package scylla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeNewest(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := func(id string, offset time.Duration) codeRow {
		return codeRow{ID: id, CreatedAt: t0.Add(offset)}
	}

	tests := []struct {
		name      string
		perBucket [][]codeRow
		limit     int
		want      []string
	}{
		{
			name:      "empty buckets",
			perBucket: [][]codeRow{nil, {}, nil},
			limit:     10,
			want:      []string{},
		},
		{
			name: "interleaves buckets by created_at",
			perBucket: [][]codeRow{
				{row("a5", 5*time.Second), row("a1", time.Second)},
				{row("b4", 4*time.Second), row("b2", 2*time.Second)},
				{row("c3", 3*time.Second)},
			},
			limit: 10,
			want:  []string{"a5", "b4", "c3", "b2", "a1"},
		},
		{
			name: "limit applies after the merge",
			perBucket: [][]codeRow{
				{row("a3", 3*time.Second), row("a2", 2*time.Second)},
				{row("b9", 9*time.Second), row("b1", time.Second)},
			},
			limit: 2,
			want:  []string{"b9", "a3"},
		},
		{
			name: "ties break on code id",
			perBucket: [][]codeRow{
				{row("z", 0)},
				{row("m", 0)},
				{row("a", 0)},
			},
			limit: 10,
			want:  []string{"a", "m", "z"},
		},
		{
			name: "zero limit keeps everything",
			perBucket: [][]codeRow{
				{row("a", time.Second)},
				{row("b", 2*time.Second)},
			},
			limit: 0,
			want:  []string{"b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeNewest(tt.perBucket, tt.limit)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
