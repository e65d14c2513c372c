package model

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	SkillSlots       = 5
	ChainLength      = 6
	MaxRelics        = 5
	MaxSubProperties = 4
	MaxRefinement    = 5
)

// ErrRosterNotFound 账号从未导入过
var ErrRosterNotFound = errors.New("roster not found")

// Property 词条（主词条或副词条）
type Property struct {
	ID         int     `json:"id"`
	Key        int     `json:"key"`
	Name       string  `json:"name"`
	Percentage bool    `json:"percentage"`
	Raw        float64 `json:"raw"`
	Value      float64 `json:"value"`
}

// ChainNode 共鸣链节点
type ChainNode struct {
	Order    int  `json:"order"`
	Unlocked bool `json:"unlocked"`
}

// WeaponSlot 武器槽，ID 为 0 表示未装备
type WeaponSlot struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Level      int    `json:"level"`
	Refinement int    `json:"refinement"`
}

// Ascension 武器突破阶段
func (w WeaponSlot) Ascension() int {
	return AscensionTier(w.Level)
}

// Empty 是否为空槽
func (w WeaponSlot) Empty() bool {
	return w.ID == 0
}

// RelicSlot 声骸槽
type RelicSlot struct {
	IncID     int64      `json:"inc_id"`
	RelicID   int        `json:"relic_id"`
	MonsterID int        `json:"monster_id"`
	Name      string     `json:"name"`
	Cost      int        `json:"cost"`
	Level     int        `json:"level"`
	Star      int        `json:"star"`
	SetID     int        `json:"set_id"`
	SetName   string     `json:"set_name,omitempty"`
	Main      Property   `json:"main"`
	Subs      []Property `json:"subs,omitempty"`
}

// RosterEntry 单个角色快照
type RosterEntry struct {
	CharacterID  int                    `json:"character_id"`
	Name         string                 `json:"name"`
	Attribute    string                 `json:"attribute,omitempty"`
	WeaponType   string                 `json:"weapon_type,omitempty"`
	Star         int                    `json:"star"`
	Level        int                    `json:"level"`
	ChainUnlocks [ChainLength]ChainNode `json:"chain_unlocks"`
	Skills       [SkillSlots]int        `json:"skills"`
	Weapon       WeaponSlot             `json:"weapon"`
	Relics       []RelicSlot            `json:"relics,omitempty"`
}

// Ascension 角色突破阶段，只由等级推导
func (e RosterEntry) Ascension() int {
	return AscensionTier(e.Level)
}

// ChainCount 已解锁的共鸣链数量
func (e RosterEntry) ChainCount() int {
	n := 0
	for _, node := range e.ChainUnlocks {
		if node.Unlocked {
			n++
		}
	}
	return n
}

// Clone 深拷贝
func (e RosterEntry) Clone() RosterEntry {
	out := e
	if len(e.Relics) == 0 {
		out.Relics = nil
		return out
	}
	out.Relics = make([]RelicSlot, len(e.Relics))
	for i, r := range e.Relics {
		out.Relics[i] = r
		if len(r.Subs) > 0 {
			out.Relics[i].Subs = append([]Property(nil), r.Subs...)
		} else {
			out.Relics[i].Subs = nil
		}
	}
	return out
}

// Equal 逐字段比较，nil 与空切片视为相同
func (e RosterEntry) Equal(o RosterEntry) bool {
	if e.CharacterID != o.CharacterID || e.Name != o.Name || e.Attribute != o.Attribute ||
		e.WeaponType != o.WeaponType || e.Star != o.Star || e.Level != o.Level {
		return false
	}
	if e.ChainUnlocks != o.ChainUnlocks || e.Skills != o.Skills || e.Weapon != o.Weapon {
		return false
	}
	if len(e.Relics) != len(o.Relics) {
		return false
	}
	for i := range e.Relics {
		if !e.Relics[i].Equal(o.Relics[i]) {
			return false
		}
	}
	return true
}

// Equal 比较两个声骸槽
func (r RelicSlot) Equal(o RelicSlot) bool {
	if r.IncID != o.IncID || r.RelicID != o.RelicID || r.MonsterID != o.MonsterID ||
		r.Name != o.Name || r.Cost != o.Cost || r.Level != o.Level || r.Star != o.Star ||
		r.SetID != o.SetID || r.SetName != o.SetName || r.Main != o.Main {
		return false
	}
	if len(r.Subs) != len(o.Subs) {
		return false
	}
	for i := range r.Subs {
		if r.Subs[i] != o.Subs[i] {
			return false
		}
	}
	return true
}

// NewChain 按解锁数量生成 6 节点共鸣链
func NewChain(unlockCount int) [ChainLength]ChainNode {
	var chain [ChainLength]ChainNode
	for i := range chain {
		order := i + 1
		chain[i] = ChainNode{Order: order, Unlocked: order <= unlockCount}
	}
	return chain
}

// Roster 账号角色名册，Entries 按 CharacterID 升序
type Roster struct {
	AccountID  string        `json:"account_id"`
	Generation int64         `json:"generation"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Entries    []RosterEntry `json:"entries"`
}

// NewRoster 创建空名册
func NewRoster(accountID string) *Roster {
	return &Roster{AccountID: accountID}
}

// Sort 按角色 ID 排序
func (r *Roster) Sort() {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		return r.Entries[i].CharacterID < r.Entries[j].CharacterID
	})
}

// Get 查找角色
func (r *Roster) Get(characterID int) (RosterEntry, bool) {
	if r == nil {
		return RosterEntry{}, false
	}
	for _, e := range r.Entries {
		if e.CharacterID == characterID {
			return e, true
		}
	}
	return RosterEntry{}, false
}

// Clone 深拷贝
func (r *Roster) Clone() *Roster {
	if r == nil {
		return nil
	}
	out := *r
	out.Entries = make([]RosterEntry, len(r.Entries))
	for i, e := range r.Entries {
		out.Entries[i] = e.Clone()
	}
	return &out
}
