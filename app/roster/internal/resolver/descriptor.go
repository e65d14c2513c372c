package resolver

import "fmt"

// Category 标识空间
type Category string

const (
	CategoryCharacter Category = "character"
	CategoryWeapon    Category = "weapon"
	CategoryRelic     Category = "relic"
	CategoryProperty  Category = "property"
	CategorySet       Category = "set"
)

// Placeholder 未知 ID 的占位名 "<category>_<rawId>"
func Placeholder(c Category, rawID int) string {
	return fmt.Sprintf("%s_%d", c, rawID)
}

// Descriptor 通用解析结果
type Descriptor struct {
	Category    Category
	RawID       int
	Name        string
	Placeholder bool
}

// CharacterDescriptor 角色元数据
type CharacterDescriptor struct {
	ID          int
	Name        string
	Attribute   string
	WeaponType  string
	Star        int
	Placeholder bool
}

// WeaponDescriptor 武器元数据
type WeaponDescriptor struct {
	ID          int
	Name        string
	Type        string
	Star        int
	Placeholder bool
}

// RelicDescriptor 声骸元数据；ID = MonsterID*10 + RarityCode
type RelicDescriptor struct {
	ID          int
	Name        string
	MonsterID   int
	RarityCode  int
	Cost        int
	SetID       int
	Placeholder bool
}

// Star 由稀有度编码推导星级
func (d RelicDescriptor) Star() int {
	return StarFromRarity(d.RarityCode)
}

// SplitRelicID 拆分原始声骸 ID
func SplitRelicID(rawID int) (monsterID, rarityCode int) {
	return rawID / 10, rawID % 10
}

// StarFromRarity 编码 1-5 对应星级，其余为 0
func StarFromRarity(code int) int {
	if code >= 1 && code <= 5 {
		return code
	}
	return 0
}

// PropertyDescriptor 词条元数据
type PropertyDescriptor struct {
	ID          int
	Band        Band
	Key         int
	Name        string
	Percentage  bool
	Prescaled   bool
	Placeholder bool
}

// SetDescriptor 套装元数据
type SetDescriptor struct {
	ID          int
	Name        string
	Placeholder bool
}
