package reconcile

import "sort"

// AliasGroups 同一逻辑角色的多个形态，共享一个名册位置
type AliasGroups map[int][]int

// DefaultAliasGroups 漂泊者各属性形态
var DefaultAliasGroups = AliasGroups{
	1: {1501, 1502},
	2: {1604, 1605},
	3: {1406, 1408},
}

type aliasIndex struct {
	groupOf map[int]int
	members map[int][]int
}

func newAliasIndex(groups AliasGroups) aliasIndex {
	idx := aliasIndex{groupOf: make(map[int]int), members: make(map[int][]int, len(groups))}
	gids := make([]int, 0, len(groups))
	for gid := range groups {
		gids = append(gids, gid)
	}
	sort.Ints(gids)
	for _, gid := range gids {
		for _, id := range groups[gid] {
			if _, dup := idx.groupOf[id]; dup {
				continue
			}
			idx.groupOf[id] = gid
			idx.members[gid] = append(idx.members[gid], id)
		}
	}
	return idx
}

func (a aliasIndex) group(id int) (int, bool) {
	gid, ok := a.groupOf[id]
	return gid, ok
}
