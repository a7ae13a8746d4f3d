package asset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPartitions(t *testing.T) {
	p, err := NewStaticPartitions([]string{"us", "eu", "apac"})
	require.NoError(t, err)

	keys, err := p.Keys(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"apac", "eu", "us"}, keys)
	assert.Equal(t, "static:apac,eu,us", p.ID())

	_, err = NewStaticPartitions([]string{"a", "a"})
	assert.Error(t, err)
	_, err = NewStaticPartitions(nil)
	assert.Error(t, err)
	_, err = NewStaticPartitions([]string{""})
	assert.Error(t, err)
}

func TestTimeWindowPartitions(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewTimeWindowPartitions("0 0 * * *", "UTC", start, "")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"before first window closes", start.Add(23 * time.Hour), []string{}},
		{"exactly at window end", start.AddDate(0, 0, 1), []string{"2024-01-01"}},
		{"three days in", start.AddDate(0, 0, 3).Add(time.Hour), []string{"2024-01-01", "2024-01-02", "2024-01-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := p.Keys(tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestTimeWindowPartitionsHourlyFormat(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewTimeWindowPartitions("0 * * * *", "UTC", start, "2006-01-02-15:04")
	require.NoError(t, err)

	keys, err := p.Keys(start.Add(2*time.Hour + 30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01-00:00", "2024-01-01-01:00"}, keys)
}

func TestTimeWindowPartitionsErrors(t *testing.T) {
	_, err := NewTimeWindowPartitions("bogus", "UTC", time.Now(), "")
	assert.Error(t, err)

	_, err = NewTimeWindowPartitions("0 0 * * *", "UTC", time.Time{}, "")
	assert.Error(t, err)
}

func TestPartitionKeysUnpartitioned(t *testing.T) {
	keys, err := PartitionKeys(nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, keys)
	assert.Equal(t, "", DefID(nil))
}
