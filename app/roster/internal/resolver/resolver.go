package resolver

import (
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// placeholderRelicCost 未知声骸按 1 cost 处理
const placeholderRelicCost = 1

// Config 资源包配置
type Config struct {
	PrimaryDir string `mapstructure:"primary_dir"`
	LegacyDir  string `mapstructure:"legacy_dir"`
	// CodeTable 为空时依次使用主包、旧包内的 relic_codes.yaml，最后使用内置表
	CodeTable string `mapstructure:"code_table"`
}

// MissObserver 未命中回调
type MissObserver func(category Category)

// Option 解析器选项
type Option func(*Resolver)

// WithMissObserver 设置未命中回调
func WithMissObserver(fn MissObserver) Option {
	return func(r *Resolver) { r.onMiss = fn }
}

// Resolver ID 与词条解析器；加载完成后只读，可并发使用
type Resolver struct {
	primary *Bundle
	legacy  *Bundle
	codes   *CodeTable
	logger  logger.Logger
	onMiss  MissObserver
}

// New 加载主资源包与旧资源包，阻塞直到加载完成
func New(cfg *Config, l logger.Logger, opts ...Option) *Resolver {
	l = logger.OrNoop(l).Named("resolver")
	if cfg == nil {
		cfg = &Config{}
	}
	primary := LoadBundle(cfg.PrimaryDir, l)
	legacy := LoadBundle(cfg.LegacyDir, l)

	if pv, lv := primary.Version(), legacy.Version(); pv != nil && lv != nil && !lv.LessThan(pv) {
		l.Warn("legacy bundle is not older than primary bundle",
			"primary_version", pv.String(),
			"legacy_version", lv.String())
	}

	var codes *CodeTable
	switch {
	case cfg.CodeTable != "":
		t, err := LoadCodeTable(cfg.CodeTable)
		if err != nil {
			l.Warn("failed to load configured relic code table, using builtin", "path", cfg.CodeTable, "error", err)
		} else {
			codes = t
		}
	case primary.codes != nil:
		codes = primary.codes
	case legacy.codes != nil:
		codes = legacy.codes
	}

	r := NewFromBundles(primary, legacy, codes, l, opts...)
	l.Info("resource bundles loaded",
		"primary_dir", cfg.PrimaryDir,
		"primary_version", primary.Manifest.Version,
		"primary", primary.Stats(),
		"legacy_dir", cfg.LegacyDir,
		"legacy", legacy.Stats(),
		"relic_codes", r.codes.Len())
	return r
}

// NewFromBundles 由已加载的资源包构造；codes 为 nil 时使用内置编码表
func NewFromBundles(primary, legacy *Bundle, codes *CodeTable, l logger.Logger, opts ...Option) *Resolver {
	if primary == nil {
		primary = EmptyBundle()
	}
	if legacy == nil {
		legacy = EmptyBundle()
	}
	if codes == nil {
		codes = DefaultCodeTable()
	}
	r := &Resolver{
		primary: primary,
		legacy:  legacy,
		codes:   codes,
		logger:  logger.OrNoop(l),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func lookup[K comparable, V any](key K, table func(*Bundle) map[K]V, bundles ...*Bundle) (V, bool) {
	for _, b := range bundles {
		if v, ok := table(b)[key]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (r *Resolver) miss(c Category, rawID int) {
	r.logger.Warn("unresolved id, using placeholder", "category", string(c), "raw_id", rawID)
	if r.onMiss != nil {
		r.onMiss(c)
	}
}

// Character 解析角色
func (r *Resolver) Character(id int) CharacterDescriptor {
	if d, ok := lookup(id, func(b *Bundle) map[int]CharacterDescriptor { return b.characters }, r.primary, r.legacy); ok {
		return d
	}
	r.miss(CategoryCharacter, id)
	return CharacterDescriptor{ID: id, Name: Placeholder(CategoryCharacter, id), Placeholder: true}
}

// Weapon 解析武器
func (r *Resolver) Weapon(id int) WeaponDescriptor {
	if d, ok := lookup(id, func(b *Bundle) map[int]WeaponDescriptor { return b.weapons }, r.primary, r.legacy); ok {
		return d
	}
	r.miss(CategoryWeapon, id)
	return WeaponDescriptor{ID: id, Name: Placeholder(CategoryWeapon, id), Placeholder: true}
}

func (r *Resolver) relicFromBundles(id int) (RelicDescriptor, bool) {
	return lookup(id, func(b *Bundle) map[int]RelicDescriptor { return b.relics }, r.primary, r.legacy)
}

// Relic 解析声骸：主包、旧包、编码表，均未命中时返回占位
// 编码表给出多个候选时由 session 选择，setID 为捕获记录里的套装组
func (r *Resolver) Relic(rawID, setID int, s *AssignmentSession) RelicDescriptor {
	if d, ok := r.relicFromBundles(rawID); ok {
		return d
	}

	var candidates []RelicDescriptor
	for _, id := range r.codes.Lookup(rawID) {
		if d, ok := r.relicFromBundles(id); ok {
			candidates = append(candidates, d)
		}
	}
	switch len(candidates) {
	case 0:
	case 1:
		return candidates[0]
	default:
		return s.pick(candidates, setID)
	}

	r.miss(CategoryRelic, rawID)
	monsterID, rarity := SplitRelicID(rawID)
	return RelicDescriptor{
		ID:          rawID,
		Name:        Placeholder(CategoryRelic, rawID),
		MonsterID:   monsterID,
		RarityCode:  rarity,
		Cost:        placeholderRelicCost,
		Placeholder: true,
	}
}

// Property 按量级区间解析词条
func (r *Resolver) Property(rawID int) PropertyDescriptor {
	band, key := ClassifyProperty(rawID)
	if band != BandNone {
		k := propertyKey{band: band, key: key}
		if d, ok := lookup(k, func(b *Bundle) map[propertyKey]PropertyDescriptor { return b.properties }, r.primary, r.legacy); ok {
			d.ID = rawID
			return d
		}
	}
	r.miss(CategoryProperty, rawID)
	return PropertyDescriptor{ID: rawID, Band: band, Key: key, Name: Placeholder(CategoryProperty, rawID), Placeholder: true}
}

// PropertyValue 解析词条并归一化数值
func (r *Resolver) PropertyValue(rawID int, raw float64) model.Property {
	d := r.Property(rawID)
	return model.Property{
		ID:         rawID,
		Key:        d.Key,
		Name:       d.Name,
		Percentage: d.Percentage,
		Raw:        raw,
		Value:      d.Normalize(raw),
	}
}

// Set 解析套装，0 表示无套装
func (r *Resolver) Set(id int) SetDescriptor {
	if id == 0 {
		return SetDescriptor{}
	}
	if d, ok := lookup(id, func(b *Bundle) map[int]SetDescriptor { return b.sets }, r.primary, r.legacy); ok {
		return d
	}
	r.miss(CategorySet, id)
	return SetDescriptor{ID: id, Name: Placeholder(CategorySet, id), Placeholder: true}
}

// Resolve 通用解析入口，不会返回错误
func (r *Resolver) Resolve(c Category, rawID int) Descriptor {
	out := Descriptor{Category: c, RawID: rawID}
	switch c {
	case CategoryCharacter:
		d := r.Character(rawID)
		out.Name, out.Placeholder = d.Name, d.Placeholder
	case CategoryWeapon:
		d := r.Weapon(rawID)
		out.Name, out.Placeholder = d.Name, d.Placeholder
	case CategoryRelic:
		d := r.Relic(rawID, 0, nil)
		out.Name, out.Placeholder = d.Name, d.Placeholder
	case CategoryProperty:
		d := r.Property(rawID)
		out.Name, out.Placeholder = d.Name, d.Placeholder
	case CategorySet:
		d := r.Set(rawID)
		out.Name, out.Placeholder = d.Name, d.Placeholder
	default:
		r.miss(c, rawID)
		out.Name, out.Placeholder = Placeholder(c, rawID), true
	}
	return out
}

// Stats 主包与旧包的表行数
func (r *Resolver) Stats() (primary, legacy map[Category]int) {
	return r.primary.Stats(), r.legacy.Stats()
}
