package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// ErrStorage 已持久化名册不可读或写入失败，属于存储层错误
var ErrStorage = errors.New("roster storage error")

// Loader 读取已持久化名册
type Loader interface {
	Load(ctx context.Context, accountID string) (*model.Roster, error)
}

// Option 合并器选项
type Option func(*Reconciler)

// WithAliasGroups 替换别名分组表
func WithAliasGroups(groups AliasGroups) Option {
	return func(r *Reconciler) { r.aliases = newAliasIndex(groups) }
}

// Reconciler 名册合并器，无状态
type Reconciler struct {
	aliases aliasIndex
	logger  logger.Logger
}

// New 创建合并器
func New(l logger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		aliases: newAliasIndex(DefaultAliasGroups),
		logger:  logger.OrNoop(l).Named("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileFrom 先读取已持久化名册再合并；名册不存在视为首次导入
func (r *Reconciler) ReconcileFrom(ctx context.Context, loader Loader, accountID string, candidate *model.Roster) (*model.Roster, *ChangeReport, error) {
	persisted, err := loader.Load(ctx, accountID)
	switch {
	case errors.Is(err, model.ErrRosterNotFound):
		persisted = model.NewRoster(accountID)
	case err != nil:
		return nil, nil, errors.Mark(errors.Wrapf(err, "load roster of %s", accountID), ErrStorage)
	case persisted == nil:
		persisted = model.NewRoster(accountID)
	}
	merged, report := r.Reconcile(persisted, candidate)
	return merged, report, nil
}

// Reconcile 合并候选名册；不会因单个角色出错而失败
//
// 单调字段（等级、武器等级、精炼、5 个技能）取较大值，其余字段以候选为准。
// 候选中缺失的已持久化角色原样保留。
func (r *Reconciler) Reconcile(persisted, candidate *model.Roster) (*model.Roster, *ChangeReport) {
	if persisted == nil {
		persisted = &model.Roster{}
	}
	if candidate == nil {
		candidate = &model.Roster{AccountID: persisted.AccountID}
	}
	accountID := persisted.AccountID
	if accountID == "" {
		accountID = candidate.AccountID
	}

	merged := &model.Roster{
		AccountID:  accountID,
		Generation: persisted.Generation,
		UpdatedAt:  persisted.UpdatedAt,
	}
	report := &ChangeReport{AccountID: accountID, Generation: persisted.Generation}

	current := make(map[int]model.RosterEntry, len(persisted.Entries))
	for _, e := range persisted.Entries {
		current[e.CharacterID] = e.Clone()
	}

	// 同一角色出现多次时以最后解码的为准，每个 ID 只检查、只报告一次
	deduped := make([]model.RosterEntry, 0, len(candidate.Entries))
	pos := make(map[int]int, len(candidate.Entries))
	for _, c := range candidate.Entries {
		if i, dup := pos[c.CharacterID]; dup {
			deduped[i] = c
			continue
		}
		pos[c.CharacterID] = len(deduped)
		deduped = append(deduped, c)
	}

	// 不合格的候选不参与别名折叠
	valid := make([]model.RosterEntry, 0, len(deduped))
	var malformed []Change
	for _, c := range deduped {
		if reason := validate(c); reason != "" {
			malformed = append(malformed, Change{CharacterID: c.CharacterID, Reason: reason})
			continue
		}
		valid = append(valid, c)
	}

	valid, superseded := r.collapseAliases(valid, current)
	gone := make(map[int]bool, len(superseded))
	for _, id := range superseded {
		gone[id] = true
		delete(current, id)
	}
	report.Superseded = superseded

	// 已被取代的角色只出现在 Superseded 中
	for _, m := range malformed {
		if gone[m.CharacterID] {
			r.logger.Debug("malformed candidate superseded by alias variant",
				"account_id", accountID, "character_id", m.CharacterID, "reason", m.Reason)
			continue
		}
		r.flag(report, current, m.CharacterID, m.Reason)
	}

	for _, c := range valid {
		prev, exists := current[c.CharacterID]
		if !exists {
			current[c.CharacterID] = c.Clone()
			report.add(Change{CharacterID: c.CharacterID, Kind: KindNew})
			continue
		}

		next, err := safeMerge(prev, c)
		if err != nil {
			r.flag(report, current, c.CharacterID, err.Error())
			continue
		}
		current[c.CharacterID] = next
		if next.Equal(prev) {
			report.add(Change{CharacterID: c.CharacterID, Kind: KindUnchanged})
			continue
		}
		report.add(Change{CharacterID: c.CharacterID, Kind: KindUpdated, Deltas: diff(prev, next)})
	}

	merged.Entries = make([]model.RosterEntry, 0, len(current))
	for _, e := range current {
		merged.Entries = append(merged.Entries, e)
	}
	merged.Sort()
	sort.SliceStable(report.Changes, func(i, j int) bool {
		return report.Changes[i].CharacterID < report.Changes[j].CharacterID
	})
	return merged, report
}

// flag 保留已持久化值并标记；新角色不会被采纳
func (r *Reconciler) flag(report *ChangeReport, current map[int]model.RosterEntry, id int, reason string) {
	_, exists := current[id]
	r.logger.Warn("malformed candidate character, keeping persisted value",
		"account_id", report.AccountID,
		"character_id", id,
		"persisted", exists,
		"reason", reason)
	report.add(Change{CharacterID: id, Kind: KindUnchanged, Flagged: true, Reason: reason})
}

// collapseAliases 每个别名组只保留候选中最后解码的成员，其余已持久化成员被取代
func (r *Reconciler) collapseAliases(candidates []model.RosterEntry, current map[int]model.RosterEntry) ([]model.RosterEntry, []int) {
	winner := make(map[int]int)
	for _, c := range candidates {
		if gid, ok := r.aliases.group(c.CharacterID); ok {
			winner[gid] = c.CharacterID
		}
	}
	if len(winner) == 0 {
		return candidates, nil
	}

	kept := candidates[:0:0]
	for _, c := range candidates {
		gid, ok := r.aliases.group(c.CharacterID)
		if ok && winner[gid] != c.CharacterID {
			r.logger.Debug("alias variant replaced by later decode", "character_id", c.CharacterID, "winner", winner[gid])
			continue
		}
		kept = append(kept, c)
	}

	var superseded []int
	for gid, keep := range winner {
		for _, id := range r.aliases.members[gid] {
			if id == keep {
				continue
			}
			if _, ok := current[id]; ok {
				superseded = append(superseded, id)
			}
		}
	}
	sort.Ints(superseded)
	return kept, superseded
}

func safeMerge(prev, cand model.RosterEntry) (out model.RosterEntry, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("merge panic: %v", p)
		}
	}()
	return merge(prev, cand), nil
}

func merge(prev, cand model.RosterEntry) model.RosterEntry {
	out := cand.Clone()
	out.Level = max(prev.Level, cand.Level)
	out.Weapon.Level = max(prev.Weapon.Level, cand.Weapon.Level)
	out.Weapon.Refinement = max(prev.Weapon.Refinement, cand.Weapon.Refinement)
	for i := range out.Skills {
		out.Skills[i] = max(prev.Skills[i], cand.Skills[i])
	}
	return out
}

func diff(prev, next model.RosterEntry) []Delta {
	var out []Delta
	add := func(field string, old, cur any) {
		out = append(out, Delta{Field: field, Old: old, New: cur})
	}

	if prev.Level != next.Level {
		add(FieldLevel, prev.Level, next.Level)
	}
	if prev.Name != next.Name {
		add(FieldName, prev.Name, next.Name)
	}
	if prev.Attribute != next.Attribute {
		add(FieldAttribute, prev.Attribute, next.Attribute)
	}
	if prev.WeaponType != next.WeaponType {
		add(FieldWeaponType, prev.WeaponType, next.WeaponType)
	}
	if prev.Star != next.Star {
		add(FieldStar, prev.Star, next.Star)
	}
	if prev.Weapon.ID != next.Weapon.ID {
		add(FieldWeaponID, prev.Weapon.ID, next.Weapon.ID)
	} else if prev.Weapon.Name != next.Weapon.Name {
		add(FieldWeaponName, prev.Weapon.Name, next.Weapon.Name)
	}
	if prev.Weapon.Level != next.Weapon.Level {
		add(FieldWeaponLevel, prev.Weapon.Level, next.Weapon.Level)
	}
	if prev.Weapon.Refinement != next.Weapon.Refinement {
		add(FieldWeaponRefinement, prev.Weapon.Refinement, next.Weapon.Refinement)
	}

	for i := 0; i < max(len(prev.Relics), len(next.Relics)); i++ {
		var old, cur *model.RelicSlot
		if i < len(prev.Relics) {
			old = &prev.Relics[i]
		}
		if i < len(next.Relics) {
			cur = &next.Relics[i]
		}
		if old == nil || cur == nil || !old.Equal(*cur) {
			add(RelicField(i), old, cur)
		}
	}

	for i := range next.Skills {
		if prev.Skills[i] != next.Skills[i] {
			add(SkillField(i), prev.Skills[i], next.Skills[i])
		}
	}
	if prev.ChainUnlocks != next.ChainUnlocks {
		add(FieldChain, prev.ChainCount(), next.ChainCount())
	}
	return out
}

// RelicField 声骸槽差异名
func RelicField(i int) string {
	return fmt.Sprintf("relic[%d]", i)
}

// SkillField 技能槽差异名
func SkillField(i int) string {
	return fmt.Sprintf("skill[%d]", i)
}
