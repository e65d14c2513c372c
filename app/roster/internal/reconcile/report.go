package reconcile

// Kind 变更类型
type Kind string

const (
	KindNew       Kind = "new"
	KindUpdated   Kind = "updated"
	KindUnchanged Kind = "unchanged"
)

// 字段级差异名
const (
	FieldLevel            = "level"
	FieldName             = "name"
	FieldAttribute        = "attribute"
	FieldWeaponType       = "weapon_type"
	FieldStar             = "star"
	FieldWeaponID         = "weapon.id"
	FieldWeaponName       = "weapon.name"
	FieldWeaponLevel      = "weapon.level"
	FieldWeaponRefinement = "weapon.refinement"
	FieldChain            = "chain"
)

// Delta 单个字段的新旧值
type Delta struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// Change 单个角色的变更
type Change struct {
	CharacterID int     `json:"character_id"`
	Kind        Kind    `json:"kind"`
	Deltas      []Delta `json:"deltas,omitempty"`
	Flagged     bool    `json:"flagged,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// Summary 计数汇总
type Summary struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Flagged   int `json:"flagged"`
}

// ChangeReport 一次合并的变更报告，只用于通知与遥测，不随名册持久化
type ChangeReport struct {
	AccountID  string   `json:"account_id"`
	Generation int64    `json:"generation"`
	RunID      string   `json:"run_id,omitempty"`
	Changes    []Change `json:"changes"`
	Superseded []int    `json:"superseded,omitempty"`
	Summary    Summary  `json:"summary"`
}

func (r *ChangeReport) add(c Change) {
	r.Changes = append(r.Changes, c)
	switch c.Kind {
	case KindNew:
		r.Summary.New++
	case KindUpdated:
		r.Summary.Updated++
	default:
		r.Summary.Unchanged++
	}
	if c.Flagged {
		r.Summary.Flagged++
	}
}

// Change 查找角色变更
func (r *ChangeReport) Change(characterID int) (Change, bool) {
	for _, c := range r.Changes {
		if c.CharacterID == characterID {
			return c, true
		}
	}
	return Change{}, false
}

// HasChanges 是否需要写入新一代名册
func (r *ChangeReport) HasChanges() bool {
	return r.Summary.New > 0 || r.Summary.Updated > 0 || len(r.Superseded) > 0
}

// WithoutDeltas 只带汇总的副本，默认对外返回该形式
func (r *ChangeReport) WithoutDeltas() *ChangeReport {
	out := *r
	out.Changes = make([]Change, len(r.Changes))
	for i, c := range r.Changes {
		c.Deltas = nil
		out.Changes[i] = c
	}
	return &out
}
