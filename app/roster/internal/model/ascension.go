package model

// 等级上限到突破阶段的阶梯表
var ascensionSteps = [...]struct {
	maxLevel int
	tier     int
}{
	{20, 0},
	{40, 1},
	{50, 2},
	{60, 3},
	{70, 4},
	{80, 5},
	{90, 6},
}

// AscensionTier 按等级计算突破阶段，超出 90 级返回 0
func AscensionTier(level int) int {
	for _, s := range ascensionSteps {
		if level <= s.maxLevel {
			return s.tier
		}
	}
	return 0
}
