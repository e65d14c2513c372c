package resolver

// AssignmentSession 单次解码内的歧义声骸分配记录，调用方持有，解码结束即丢弃
type AssignmentSession struct {
	assigned map[int]struct{}
}

// NewAssignmentSession 创建分配会话
func NewAssignmentSession() *AssignmentSession {
	return &AssignmentSession{assigned: make(map[int]struct{})}
}

// Assigned 已分配出的声骸 ID 数量
func (s *AssignmentSession) Assigned() int {
	if s == nil {
		return 0
	}
	return len(s.assigned)
}

// pick 候选先按套装过滤，取第一个未分配的；全部分配过则取第一个
func (s *AssignmentSession) pick(candidates []RelicDescriptor, setID int) RelicDescriptor {
	pool := candidates
	if setID != 0 {
		var matched []RelicDescriptor
		for _, c := range candidates {
			if c.SetID == setID {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			pool = matched
		}
	}

	chosen := pool[0]
	if s != nil {
		for _, c := range pool {
			if _, ok := s.assigned[c.ID]; !ok {
				chosen = c
				break
			}
		}
		s.assigned[chosen.ID] = struct{}{}
	}
	return chosen
}
