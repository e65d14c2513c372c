package reconcile

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func entry(id, level, weaponLevel int, skills [model.SkillSlots]int) model.RosterEntry {
	return model.RosterEntry{
		CharacterID:  id,
		Name:         "character",
		Level:        level,
		ChainUnlocks: model.NewChain(0),
		Skills:       skills,
		Weapon:       model.WeaponSlot{ID: 21020015, Level: weaponLevel, Refinement: 1},
	}
}

func roster(entries ...model.RosterEntry) *model.Roster {
	r := &model.Roster{AccountID: "acc", Generation: 3, Entries: entries}
	r.Sort()
	return r
}

func fields(c Change) []string {
	out := make([]string, 0, len(c.Deltas))
	for _, d := range c.Deltas {
		out = append(out, d.Field)
	}
	return out
}

func TestScenario1205(t *testing.T) {
	persisted := roster(entry(1205, 80, 70, [5]int{8, 8, 7, 6, 8}))
	candidate := roster(entry(1205, 70, 80, [5]int{7, 9, 7, 6, 8}))

	merged, report := New(nil).Reconcile(persisted, candidate)

	got, ok := merged.Get(1205)
	require.True(t, ok)
	assert.Equal(t, 80, got.Level)
	assert.Equal(t, 80, got.Weapon.Level)
	assert.Equal(t, [5]int{8, 9, 7, 6, 8}, got.Skills)

	c, ok := report.Change(1205)
	require.True(t, ok)
	assert.Equal(t, KindUpdated, c.Kind)
	assert.Equal(t, []string{FieldWeaponLevel, SkillField(1)}, fields(c))
	assert.Equal(t, Delta{Field: FieldWeaponLevel, Old: 70, New: 80}, c.Deltas[0])
	assert.Equal(t, Summary{Updated: 1}, report.Summary)
	assert.Equal(t, int64(3), merged.Generation)
}

func TestNewCharacterAdoptedVerbatim(t *testing.T) {
	cand := entry(1102, 50, 40, [5]int{5, 4, 3, 2, 1})
	cand.Relics = []model.RelicSlot{{IncID: 1, RelicID: 6000045, Cost: 4}}

	merged, report := New(nil).Reconcile(nil, roster(cand))

	got, ok := merged.Get(1102)
	require.True(t, ok)
	assert.True(t, got.Equal(cand))
	assert.Equal(t, "acc", merged.AccountID)
	assert.Equal(t, Summary{New: 1}, report.Summary)
	assert.True(t, report.HasChanges())
}

func TestMergeIsIdempotent(t *testing.T) {
	persisted := roster(
		entry(1205, 80, 70, [5]int{8, 8, 7, 6, 8}),
		entry(1302, 90, 90, [5]int{10, 10, 10, 10, 10}),
		entry(1501, 60, 60, [5]int{1, 1, 1, 1, 1}),
	)
	candidate := roster(
		entry(1205, 70, 80, [5]int{7, 9, 7, 6, 8}),
		entry(1102, 20, 1, [5]int{1, 1, 1, 1, 1}),
		entry(1502, 70, 70, [5]int{2, 2, 2, 2, 2}),
	)

	rec := New(nil)
	merged, _ := rec.Reconcile(persisted, candidate)
	merged2, report := rec.Reconcile(merged, candidate)

	require.Len(t, merged2.Entries, len(merged.Entries))
	for i := range merged.Entries {
		assert.True(t, merged.Entries[i].Equal(merged2.Entries[i]))
	}
	assert.Equal(t, Summary{Unchanged: 3}, report.Summary)
	assert.Empty(t, report.Superseded)
	assert.False(t, report.HasChanges())
}

func TestMonotonicFieldsNeverDecrease(t *testing.T) {
	persisted := entry(1205, 80, 90, [5]int{10, 10, 10, 10, 10})
	persisted.Weapon.Refinement = 5

	cases := []model.RosterEntry{
		entry(1205, 1, 1, [5]int{1, 1, 1, 1, 1}),
		entry(1205, 90, 20, [5]int{10, 1, 10, 1, 10}),
		entry(1205, 0, 0, [5]int{}),
	}
	for _, cand := range cases {
		merged, _ := New(nil).Reconcile(roster(persisted), roster(cand))
		got, _ := merged.Get(1205)
		assert.GreaterOrEqual(t, got.Level, persisted.Level)
		assert.GreaterOrEqual(t, got.Weapon.Level, persisted.Weapon.Level)
		assert.GreaterOrEqual(t, got.Weapon.Refinement, persisted.Weapon.Refinement)
		for i := range got.Skills {
			assert.GreaterOrEqual(t, got.Skills[i], persisted.Skills[i])
		}
	}
}

func TestNonMonotonicFieldsTakeCandidate(t *testing.T) {
	persisted := entry(1205, 80, 80, [5]int{8, 8, 8, 8, 8})
	persisted.ChainUnlocks = model.NewChain(4)
	persisted.Relics = []model.RelicSlot{{IncID: 1, RelicID: 6000045}, {IncID: 2, RelicID: 6000055}}

	cand := entry(1205, 80, 80, [5]int{8, 8, 8, 8, 8})
	cand.ChainUnlocks = model.NewChain(2)
	cand.Weapon = model.WeaponSlot{ID: 21020011, Level: 1, Refinement: 1}
	cand.Relics = []model.RelicSlot{{IncID: 3, RelicID: 6000063}}

	merged, report := New(nil).Reconcile(roster(persisted), roster(cand))
	got, _ := merged.Get(1205)

	assert.Equal(t, cand.ChainUnlocks, got.ChainUnlocks)
	assert.Equal(t, cand.Relics, got.Relics)
	assert.Equal(t, 21020011, got.Weapon.ID)
	assert.Equal(t, 80, got.Weapon.Level, "weapon level is protected even across weapon swaps")

	c, _ := report.Change(1205)
	assert.Equal(t, []string{FieldWeaponID, RelicField(0), RelicField(1), FieldChain}, fields(c))
	assert.Nil(t, c.Deltas[2].New)
}

func TestUnequipIsAccepted(t *testing.T) {
	persisted := entry(1205, 80, 80, [5]int{})
	persisted.Relics = []model.RelicSlot{{IncID: 1, RelicID: 6000045}}
	cand := entry(1205, 80, 0, [5]int{})
	cand.Weapon = model.WeaponSlot{}

	merged, _ := New(nil).Reconcile(roster(persisted), roster(cand))
	got, _ := merged.Get(1205)
	assert.Empty(t, got.Relics)
	assert.Equal(t, 0, got.Weapon.ID)
	// 武器等级仍按单调规则保留
	assert.Equal(t, 80, got.Weapon.Level)
}

func TestAliasCollapse(t *testing.T) {
	persisted := roster(
		entry(1501, 60, 60, [5]int{}),
		entry(1502, 50, 50, [5]int{}),
		entry(1205, 80, 80, [5]int{}),
	)
	candidate := roster(entry(1502, 70, 70, [5]int{}))

	merged, report := New(nil).Reconcile(persisted, candidate)

	_, hasA := merged.Get(1501)
	b, hasB := merged.Get(1502)
	assert.False(t, hasA)
	require.True(t, hasB)
	assert.Equal(t, 70, b.Level)
	_, kept := merged.Get(1205)
	assert.True(t, kept, "characters missing from the candidate are kept")
	assert.Equal(t, []int{1501}, report.Superseded)
	assert.True(t, report.HasChanges())
}

func TestAliasLastDecodedWins(t *testing.T) {
	persisted := roster(entry(1604, 60, 60, [5]int{}))
	candidate := &model.Roster{AccountID: "acc", Entries: []model.RosterEntry{
		entry(1605, 70, 70, [5]int{}),
		entry(1604, 65, 65, [5]int{}),
	}}

	merged, report := New(nil).Reconcile(persisted, candidate)
	require.Len(t, merged.Entries, 1)
	assert.Equal(t, 1604, merged.Entries[0].CharacterID)
	assert.Equal(t, 65, merged.Entries[0].Level)
	assert.Empty(t, report.Superseded)

	_, reported := report.Change(1605)
	assert.False(t, reported)
}

func TestCustomAliasGroups(t *testing.T) {
	rec := New(nil, WithAliasGroups(AliasGroups{9: {10, 11, 12}}))
	merged, report := rec.Reconcile(
		roster(entry(10, 1, 1, [5]int{}), entry(11, 1, 1, [5]int{}), entry(1501, 1, 1, [5]int{})),
		roster(entry(12, 1, 1, [5]int{}), entry(1502, 1, 1, [5]int{})),
	)
	assert.Equal(t, []int{10, 11}, report.Superseded)
	_, ok := merged.Get(1501)
	assert.True(t, ok, "default groups no longer apply")
}

func TestMalformedCandidateFlagged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := New(logger.NewWithCore(core, &logger.Config{}))

	persisted := entry(1205, 80, 80, [5]int{8, 8, 8, 8, 8})
	bad := entry(1205, 90, 90, [5]int{9, 9, 9, 9, 9})
	bad.ChainUnlocks[3].Unlocked = true

	badNew := entry(1102, 10, 10, [5]int{-1, 0, 0, 0, 0})
	good := entry(1302, 10, 10, [5]int{})

	merged, report := rec.Reconcile(roster(persisted), roster(bad, badNew, good))

	got, _ := merged.Get(1205)
	assert.True(t, got.Equal(persisted))
	_, adopted := merged.Get(1102)
	assert.False(t, adopted, "malformed new character is not adopted")

	c, _ := report.Change(1205)
	assert.Equal(t, KindUnchanged, c.Kind)
	assert.True(t, c.Flagged)
	assert.Equal(t, "chain unlocks are not a prefix", c.Reason)

	c, _ = report.Change(1102)
	assert.True(t, c.Flagged)
	assert.Equal(t, Summary{New: 1, Unchanged: 2, Flagged: 2}, report.Summary)
	assert.Len(t, logs.FilterMessage("malformed candidate character, keeping persisted value").All(), 2)
}

func TestValidate(t *testing.T) {
	ok := entry(1, 1, 1, [5]int{})
	assert.Empty(t, validate(ok))

	cases := map[string]func(e *model.RosterEntry){
		"id":         func(e *model.RosterEntry) { e.CharacterID = 0 },
		"level":      func(e *model.RosterEntry) { e.Level = -1 },
		"refinement": func(e *model.RosterEntry) { e.Weapon.Refinement = 6 },
		"relics":     func(e *model.RosterEntry) { e.Relics = make([]model.RelicSlot, 6) },
		"order":      func(e *model.RosterEntry) { e.ChainUnlocks[0].Order = 3 },
	}
	for name, mutate := range cases {
		e := ok
		mutate(&e)
		assert.NotEmpty(t, validate(e), name)
	}
}

type fakeLoader struct {
	roster *model.Roster
	err    error
}

func (f fakeLoader) Load(context.Context, string) (*model.Roster, error) {
	return f.roster, f.err
}

func TestReconcileFrom(t *testing.T) {
	rec := New(nil)
	cand := roster(entry(1205, 70, 80, [5]int{}))

	merged, report, err := rec.ReconcileFrom(context.Background(), fakeLoader{err: model.ErrRosterNotFound}, "acc", cand)
	require.NoError(t, err)
	assert.Len(t, merged.Entries, 1)
	assert.Equal(t, Summary{New: 1}, report.Summary)
	assert.Equal(t, int64(0), merged.Generation)

	_, _, err = rec.ReconcileFrom(context.Background(), fakeLoader{err: errors.New("connection reset")}, "acc", cand)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))

	merged, report, err = rec.ReconcileFrom(context.Background(), fakeLoader{roster: roster(entry(1205, 80, 70, [5]int{}))}, "acc", cand)
	require.NoError(t, err)
	got, _ := merged.Get(1205)
	assert.Equal(t, 80, got.Level)
	assert.Equal(t, Summary{Updated: 1}, report.Summary)
}

func TestWithoutDeltas(t *testing.T) {
	_, report := New(nil).Reconcile(
		roster(entry(1205, 80, 70, [5]int{})),
		roster(entry(1205, 80, 80, [5]int{})),
	)
	slim := report.WithoutDeltas()
	assert.Nil(t, slim.Changes[0].Deltas)
	assert.NotEmpty(t, report.Changes[0].Deltas)
	assert.Equal(t, report.Summary, slim.Summary)
}

func TestMalformedAliasMemberSuperseded(t *testing.T) {
	persisted := roster(entry(1501, 60, 60, [5]int{}))
	candidate := roster(entry(1501, -5, 60, [5]int{}), entry(1502, 70, 70, [5]int{}))

	merged, report := New(nil).Reconcile(persisted, candidate)

	_, hasA := merged.Get(1501)
	assert.False(t, hasA)
	assert.Equal(t, []int{1501}, report.Superseded)
	require.Len(t, report.Changes, 1)
	assert.Equal(t, 1502, report.Changes[0].CharacterID)
	assert.Equal(t, KindNew, report.Changes[0].Kind)
	assert.Equal(t, Summary{New: 1}, report.Summary)
}

func TestDuplicateCandidateReportedOnce(t *testing.T) {
	persisted := roster(entry(1205, 80, 80, [5]int{}))

	t.Run("last malformed", func(t *testing.T) {
		candidate := &model.Roster{AccountID: "acc", Entries: []model.RosterEntry{
			entry(1205, 85, 80, [5]int{}),
			entry(1205, -1, 80, [5]int{}),
		}}
		merged, report := New(nil).Reconcile(persisted, candidate)

		require.Len(t, report.Changes, 1)
		assert.Equal(t, KindUnchanged, report.Changes[0].Kind)
		assert.True(t, report.Changes[0].Flagged)
		assert.Equal(t, Summary{Unchanged: 1, Flagged: 1}, report.Summary)
		got, _ := merged.Get(1205)
		assert.Equal(t, 80, got.Level)
	})

	t.Run("last valid", func(t *testing.T) {
		candidate := &model.Roster{AccountID: "acc", Entries: []model.RosterEntry{
			entry(1205, -1, 80, [5]int{}),
			entry(1205, 85, 80, [5]int{}),
		}}
		merged, report := New(nil).Reconcile(persisted, candidate)

		require.Len(t, report.Changes, 1)
		assert.Equal(t, KindUpdated, report.Changes[0].Kind)
		assert.False(t, report.Changes[0].Flagged)
		assert.Equal(t, Summary{Updated: 1}, report.Summary)
		got, _ := merged.Get(1205)
		assert.Equal(t, 85, got.Level)
	})
}
