package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAwardSupersedes(t *testing.T) {
	a := AwardRecord{ID: "a", CreatedAt: 100}
	b := AwardRecord{ID: "b", CreatedAt: 200}
	assert.True(t, b.Supersedes(a))
	assert.False(t, a.Supersedes(b))

	tieA := AwardRecord{ID: "a", CreatedAt: 100}
	tieB := AwardRecord{ID: "b", CreatedAt: 100}
	assert.True(t, tieB.Supersedes(tieA))
	assert.False(t, tieA.Supersedes(tieB))
}

func TestPendingAwardResolve(t *testing.T) {
	r := NewPendingAward(AwardRecord{ID: "award", BadgeID: "30009:x:y", Awarder: "x", CreatedAt: 5})
	assert.True(t, r.Pending)
	assert.Equal(t, "30009:x:y", r.ID)
	assert.Empty(t, r.Name)

	r.Resolve(nil)
	assert.True(t, r.Pending)

	r.Resolve(&BadgeDefinition{ID: "30009:x:y", Name: "Y"})
	assert.False(t, r.Pending)
	assert.Equal(t, "Y", r.Name)
	assert.Equal(t, "award", r.AwardID)
	assert.Equal(t, int64(5), r.AwardedAt)
}

func TestDisplayListHelpers(t *testing.T) {
	l := &ProfileDisplayList{Entries: []DisplayEntry{{BadgeID: "x", AwardID: "1"}}}
	assert.Equal(t, 0, l.IndexOf("x"))
	assert.Equal(t, -1, l.IndexOf("y"))

	c := l.Clone()
	c.Entries[0].AwardID = "2"
	assert.Equal(t, "1", l.Entries[0].AwardID)

	newer := &ProfileDisplayList{CreatedAt: 2}
	assert.True(t, newer.Newer(l))
	assert.True(t, l.Newer(nil))
	assert.True(t, DisplayAdd.Valid())
	assert.False(t, DisplayAction("flip").Valid())
}
