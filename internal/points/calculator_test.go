package points

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/uniform-points/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func captain(retirement *time.Time) model.Person {
	return model.Person{
		Rank:           "captain",
		EnlistmentDate: date(2016, time.January, 1),
		RetirementDate: retirement,
	}
}

func TestCalculateFullYear(t *testing.T) {
	got, err := Calculate(captain(nil), 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(650000), got)
}

func TestCalculateProratedForJuneRetirement(t *testing.T) {
	retired := date(2026, time.June, 30)

	got, err := Calculate(captain(&retired), 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(320547), got)
	assert.Greater(t, got, int64(320000))
	assert.Less(t, got, int64(650000))
}

func TestCalculateEdgeCases(t *testing.T) {
	jan1 := date(2026, time.January, 1)
	jan2 := date(2026, time.January, 2)
	dec31 := date(2026, time.December, 31)
	otherYear := date(2027, time.March, 1)
	lateEvening := time.Date(2026, time.January, 1, 18, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	tests := []struct {
		name   string
		person model.Person
		want   int64
	}{
		{
			name:   "retirement on january 1",
			person: captain(&jan1),
			want:   0,
		},
		{
			name:   "retirement on january 2",
			person: captain(&jan2),
			want:   650000 / 365,
		},
		{
			name:   "retirement on december 31",
			person: captain(&dec31),
			want:   650000 * 364 / 365,
		},
		{
			name:   "retirement in another year",
			person: captain(&otherYear),
			want:   650000,
		},
		{
			name:   "partial day rounds up",
			person: captain(&lateEvening),
			want:   650000 / 365,
		},
		{
			name: "unknown rank gets tenure only",
			person: model.Person{
				Rank:           "cadet",
				EnlistmentDate: date(2020, time.September, 1),
			},
			want: 6 * StepIncrement,
		},
		{
			name: "enlistment after fiscal year clamps tenure",
			person: model.Person{
				Rank:           "private",
				EnlistmentDate: date(2028, time.February, 1),
			},
			want: 300000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.person, 2026)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateMalformedDates(t *testing.T) {
	before := date(2015, time.December, 31)

	tests := []struct {
		name   string
		person model.Person
		year   int
	}{
		{name: "missing enlistment", person: model.Person{Rank: "captain"}, year: 2026},
		{name: "retirement before enlistment", person: captain(&before), year: 2026},
		{name: "non-positive year", person: captain(nil), year: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.person, tt.year)
			assert.ErrorIs(t, err, ErrMalformedDates)
		})
	}
}

func TestIsKnownRank(t *testing.T) {
	assert.True(t, IsKnownRank("captain"))
	assert.False(t, IsKnownRank("cadet"))
	assert.Equal(t, int64(0), BaseForRank("cadet"))
}
