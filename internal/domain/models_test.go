package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLstBitset(t *testing.T) {
	l := ListFL | ListAL

	assert.True(t, l.Has(ListFL))
	assert.True(t, l.Has(ListAL))
	assert.False(t, l.Has(ListBL))
	assert.True(t, l.Has(ListFL|ListAL))
	assert.False(t, l.Has(ListFL|ListBL), "Has requires every bit")

	assert.Equal(t, "FL,AL", l.String())
	assert.Equal(t, "none", Lst(0).String())
}

func TestListFromLabel(t *testing.T) {
	for label, want := range map[string]Lst{
		"FL": ListFL, "AL": ListAL, "BL": ListBL, "RL": ListRL, "PL": ListPL,
	} {
		got, ok := ListFromLabel(label)
		assert.True(t, ok, label)
		assert.Equal(t, want, got)
	}

	_, ok := ListFromLabel("XX")
	assert.False(t, ok)
}

func TestSubstatusRoundTrip(t *testing.T) {
	for _, s := range []Substatus{
		SubstatusOffline, SubstatusOnline, SubstatusBusy, SubstatusIdle,
		SubstatusBRB, SubstatusAway, SubstatusOnPhone, SubstatusLunch,
		SubstatusInvisible,
	} {
		got, ok := ParseSubstatus(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}

	_, ok := ParseSubstatus("gone-fishing")
	assert.False(t, ok)
	assert.Equal(t, "offline", Substatus(99).String())
}

func TestIsOfflineish(t *testing.T) {
	assert.True(t, SubstatusOffline.IsOfflineish())
	assert.True(t, SubstatusInvisible.IsOfflineish())
	assert.False(t, SubstatusOnline.IsOfflineish())
	assert.False(t, SubstatusAway.IsOfflineish())
}

func TestBLPDefault(t *testing.T) {
	d := NewUserDetail()
	assert.Equal(t, "AL", d.BLP())

	d.Settings["BLP"] = "BL"
	assert.Equal(t, "BL", d.BLP())

	d.Settings["BLP"] = ""
	assert.Equal(t, "AL", d.BLP())
}
