package reconcile

import (
	"fmt"

	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
)

// validate 候选角色的结构检查，返回空串表示通过
func validate(e model.RosterEntry) string {
	if e.CharacterID <= 0 {
		return fmt.Sprintf("invalid character id %d", e.CharacterID)
	}
	if e.Level < 0 {
		return fmt.Sprintf("negative level %d", e.Level)
	}
	for i, lv := range e.Skills {
		if lv < 0 {
			return fmt.Sprintf("negative skill[%d] level %d", i, lv)
		}
	}
	locked := false
	for i, node := range e.ChainUnlocks {
		if node.Order != i+1 {
			return fmt.Sprintf("chain node %d has order %d", i, node.Order)
		}
		if locked && node.Unlocked {
			return "chain unlocks are not a prefix"
		}
		if !node.Unlocked {
			locked = true
		}
	}
	if len(e.Relics) > model.MaxRelics {
		return fmt.Sprintf("%d relics exceed the slot limit", len(e.Relics))
	}
	if e.Weapon.Refinement < 0 || e.Weapon.Refinement > model.MaxRefinement {
		return fmt.Sprintf("weapon refinement %d out of range", e.Weapon.Refinement)
	}
	if e.Weapon.Level < 0 {
		return fmt.Sprintf("negative weapon level %d", e.Weapon.Level)
	}
	return ""
}
