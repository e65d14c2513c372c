package decoder

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/capture"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/resolver"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// ErrNilPayload 空载荷
var ErrNilPayload = errors.New("decoder: nil payload")

// 技能 key = base*100 + suffix，只有以下后缀是可追踪技能
var skillSlots = map[int]int{
	1: 0, // 普攻
	2: 1, // 共鸣技能
	3: 2, // 共鸣解放
	6: 3, // 共鸣回路
	7: 4, // 变奏技能
}

// Resolver 解码所需的查表能力
type Resolver interface {
	Character(id int) resolver.CharacterDescriptor
	Weapon(id int) resolver.WeaponDescriptor
	Relic(rawID, setID int, s *resolver.AssignmentSession) resolver.RelicDescriptor
	PropertyValue(rawID int, raw float64) model.Property
	Set(id int) resolver.SetDescriptor
}

// Counters 解码过程的统计，不参与持久化
type Counters struct {
	AccountID   string `json:"account_id"`
	Nickname    string `json:"nickname"`
	PlayerLevel int    `json:"player_level"`
	WorldLevel  int    `json:"world_level"`

	RolesSeen          int `json:"roles_seen"`
	RolesDecoded       int `json:"roles_decoded"`
	ShapeErrors        int `json:"shape_errors"`
	UnresolvedIDs      int `json:"unresolved_ids"`
	IgnoredRelicRefs   int `json:"ignored_relic_refs"`
	NonCanonicalSkills int `json:"non_canonical_skills"`
	SkillTreeNodes     int `json:"skill_tree_nodes"`
	WeaponsMatched     int `json:"weapons_matched"`
	RelicsEquipped     int `json:"relics_equipped"`
}

// Result 解码结果，Entries 按 CharacterID 升序
type Result struct {
	Entries  []model.RosterEntry
	Counters Counters
}

// Roster 转为候选名册
func (r *Result) Roster(accountID string) *model.Roster {
	return &model.Roster{AccountID: accountID, Entries: r.Entries}
}

// Decoder 通知记录解码器，无状态，可并发使用
type Decoder struct {
	resolver Resolver
	logger   logger.Logger
}

// New 创建解码器
func New(r Resolver, l logger.Logger) *Decoder {
	return &Decoder{
		resolver: r,
		logger:   logger.OrNoop(l).Named("decoder"),
	}
}

// run 单次解码的上下文
type run struct {
	d        *Decoder
	session  *resolver.AssignmentSession
	counters Counters

	weapons map[int]capture.Weapon
	relics  map[int64]capture.Phantom
	equips  map[int][]int64
}

// Decode 解码一份抓包载荷；缺失或损坏的通知按空处理，只有空载荷返回错误
func (d *Decoder) Decode(payload capture.Payload) (*Result, error) {
	if payload == nil {
		return nil, ErrNilPayload
	}
	r := &run{d: d, session: resolver.NewAssignmentSession()}

	r.decodeBasicInfo(payload)
	r.indexWeapons(payload)
	r.indexRelics(payload)

	var roles capture.RoleListNotify
	if !r.decodeNotify(payload, capture.NotifyRoleList, &roles) {
		return r.result(nil), nil
	}

	entries := make([]model.RosterEntry, 0, len(roles.Roles))
	seen := make(map[int]bool, len(roles.Roles))
	for i, role := range roles.Roles {
		r.counters.RolesSeen++
		if role.RoleID == nil {
			r.shapeError("role record without roleId, skipped", "index", i)
			continue
		}
		id := *role.RoleID
		if seen[id] {
			r.shapeError("duplicate role record, skipped", "role_id", id)
			continue
		}
		seen[id] = true
		entries = append(entries, r.decodeRole(id, role))
		r.counters.RolesDecoded++
	}
	return r.result(entries), nil
}

func (r *run) result(entries []model.RosterEntry) *Result {
	roster := model.Roster{Entries: entries}
	roster.Sort()
	return &Result{Entries: roster.Entries, Counters: r.counters}
}

func (r *run) shapeError(msg string, keysAndValues ...any) {
	r.counters.ShapeErrors++
	r.d.logger.Warn(msg, keysAndValues...)
}

// decodeNotify 通知缺失时返回 false；解码失败计为结构错误
func (r *run) decodeNotify(p capture.Payload, name string, out any) bool {
	if err := p.Decode(name, out); err != nil {
		if errors.Is(err, capture.ErrNotifyMissing) {
			r.d.logger.Debug("notify absent", "notify", name)
			return false
		}
		r.shapeError("malformed notify, treated as empty", "notify", name, "error", err)
		return false
	}
	return true
}

func (r *run) decodeBasicInfo(p capture.Payload) {
	var basic capture.BasicInfoNotify
	if !r.decodeNotify(p, capture.NotifyBasicInfo, &basic) {
		return
	}
	r.counters.AccountID = basic.ID
	if a, ok := basic.Attr(capture.AttrName); ok {
		r.counters.Nickname = a.StrValue
	}
	if a, ok := basic.Attr(capture.AttrLevel); ok {
		r.counters.PlayerLevel = int(a.IntValue)
	}
	if a, ok := basic.Attr(capture.AttrWorldLevel); ok {
		r.counters.WorldLevel = int(a.IntValue)
	}
}

// indexWeapons 按装备者索引武器，同一角色出现多把时取背包中的第一把
func (r *run) indexWeapons(p capture.Payload) {
	r.weapons = make(map[int]capture.Weapon)
	var inv capture.WeaponItemNotify
	if !r.decodeNotify(p, capture.NotifyWeaponItem, &inv) {
		return
	}
	for _, w := range inv.Items {
		if w.RoleID == 0 {
			continue
		}
		if _, ok := r.weapons[w.RoleID]; ok {
			r.shapeError("role has more than one weapon, keeping first", "role_id", w.RoleID, "weapon_id", w.ID)
			continue
		}
		r.weapons[w.RoleID] = w
	}
}

func (r *run) indexRelics(p capture.Payload) {
	r.relics = make(map[int64]capture.Phantom)
	r.equips = make(map[int][]int64)
	var inv capture.PhantomItemNotify
	if !r.decodeNotify(p, capture.NotifyPhantomItem, &inv) {
		return
	}
	for _, ph := range inv.Items {
		r.relics[ph.IncID] = ph
	}
	for _, eq := range inv.Equips {
		r.equips[eq.RoleID] = eq.IncIDs
	}
}

func (r *run) decodeRole(id int, role capture.Role) model.RosterEntry {
	meta := r.d.resolver.Character(id)
	r.countMiss(meta.Placeholder)

	entry := model.RosterEntry{
		CharacterID:  id,
		Name:         meta.Name,
		Attribute:    meta.Attribute,
		WeaponType:   meta.WeaponType,
		Star:         meta.Star,
		Level:        role.Level,
		ChainUnlocks: model.NewChain(role.ResonantChain),
		Skills:       r.decodeSkills(id, role.Skills),
	}
	r.counters.SkillTreeNodes += len(role.SkillNodeState)

	if w, ok := r.weapons[id]; ok {
		entry.Weapon = r.decodeWeapon(w)
		r.counters.WeaponsMatched++
	}
	entry.Relics = r.decodeRelics(id)
	return entry
}

// decodeSkills 按后缀填入 5 个固定槽位，收集满 5 个后停止
func (r *run) decodeSkills(roleID int, pairs []capture.KeyValue) [model.SkillSlots]int {
	var skills [model.SkillSlots]int
	var filled [model.SkillSlots]bool
	collected := 0
	for _, kv := range pairs {
		if collected == model.SkillSlots {
			break
		}
		slot, ok := skillSlots[kv.Key%100]
		if !ok {
			r.counters.NonCanonicalSkills++
			continue
		}
		collected++
		if filled[slot] {
			r.d.logger.Debug("duplicate skill suffix, keeping first", "role_id", roleID, "key", kv.Key)
			continue
		}
		skills[slot] = kv.Value
		filled[slot] = true
	}
	return skills
}

func (r *run) decodeWeapon(w capture.Weapon) model.WeaponSlot {
	meta := r.d.resolver.Weapon(w.ID)
	r.countMiss(meta.Placeholder)
	return model.WeaponSlot{
		ID:         w.ID,
		Name:       meta.Name,
		Level:      w.Level,
		Refinement: w.Refinement,
	}
}

// decodeRelics 只取前 5 个引用，多余的按策略忽略
func (r *run) decodeRelics(roleID int) []model.RelicSlot {
	refs := r.equips[roleID]
	if len(refs) > model.MaxRelics {
		r.counters.IgnoredRelicRefs += len(refs) - model.MaxRelics
		refs = refs[:model.MaxRelics]
	}

	var out []model.RelicSlot
	for _, incID := range refs {
		if incID == 0 {
			continue
		}
		ph, ok := r.relics[incID]
		if !ok {
			r.shapeError("relic reference not in inventory, skipped",
				"role_id", roleID,
				"inc_id", strconv.FormatInt(incID, 10))
			continue
		}
		out = append(out, r.decodeRelic(ph))
		r.counters.RelicsEquipped++
	}
	return out
}

func (r *run) decodeRelic(ph capture.Phantom) model.RelicSlot {
	meta := r.d.resolver.Relic(ph.ID, ph.FetterGroupID, r.session)
	r.countMiss(meta.Placeholder)

	setID := ph.FetterGroupID
	if setID == 0 {
		setID = meta.SetID
	}
	set := r.d.resolver.Set(setID)
	r.countMiss(set.Placeholder)

	slot := model.RelicSlot{
		IncID:     ph.IncID,
		RelicID:   meta.ID,
		MonsterID: meta.MonsterID,
		Name:      meta.Name,
		Cost:      meta.Cost,
		Level:     ph.Level,
		Star:      meta.Star(),
		SetID:     setID,
		SetName:   set.Name,
	}
	if len(ph.MainProps) > 0 {
		slot.Main = r.property(ph.MainProps[0])
	}
	subs := ph.SubProps
	if len(subs) > model.MaxSubProperties {
		subs = subs[:model.MaxSubProperties]
	}
	for _, sp := range subs {
		slot.Subs = append(slot.Subs, r.property(sp))
	}
	if meta.Star() == 0 {
		r.d.logger.Warn("relic rarity code outside 1-5, star set to 0",
			"relic_id", meta.ID,
			"rarity_code", meta.RarityCode)
	}
	return slot
}

func (r *run) property(p capture.PhantomProp) model.Property {
	prop := r.d.resolver.PropertyValue(p.ID, p.Value)
	if prop.Name == resolver.Placeholder(resolver.CategoryProperty, p.ID) {
		r.counters.UnresolvedIDs++
	}
	return prop
}

func (r *run) countMiss(placeholder bool) {
	if placeholder {
		r.counters.UnresolvedIDs++
	}
}
