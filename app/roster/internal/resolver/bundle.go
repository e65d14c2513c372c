package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-version"
	"github.com/lk2023060901/xdooria-roster/pkg/gameconfig"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

const (
	tableCharacters = "characters"
	tableWeapons    = "weapons"
	tableRelics     = "relics"
	tableProperties = "properties"
	tableSets       = "sets"

	manifestFile  = "manifest.json"
	codeTableFile = "relic_codes.yaml"
)

// Manifest 资源包清单
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type characterRow struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Attribute  string `json:"attribute"`
	WeaponType string `json:"weapon_type"`
	Star       int    `json:"star"`
}

type weaponRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Star int    `json:"star"`
}

type relicRow struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	MonsterID int    `json:"monster_id"`
	Cost      int    `json:"cost"`
	SetID     int    `json:"set_id"`
}

type propertyRow struct {
	ID         int    `json:"id"`
	Band       string `json:"band"`
	Name       string `json:"name"`
	Percentage bool   `json:"percentage"`
	Prescaled  bool   `json:"prescaled"`
}

type setRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Bundle 一个资源包，加载后只读
type Bundle struct {
	Dir      string
	Manifest Manifest

	version    *version.Version
	characters map[int]CharacterDescriptor
	weapons    map[int]WeaponDescriptor
	relics     map[int]RelicDescriptor
	properties map[propertyKey]PropertyDescriptor
	sets       map[int]SetDescriptor
	codes      *CodeTable
}

func newBundle(dir string) *Bundle {
	return &Bundle{
		Dir:        dir,
		characters: make(map[int]CharacterDescriptor),
		weapons:    make(map[int]WeaponDescriptor),
		relics:     make(map[int]RelicDescriptor),
		properties: make(map[propertyKey]PropertyDescriptor),
		sets:       make(map[int]SetDescriptor),
	}
}

// EmptyBundle 空资源包
func EmptyBundle() *Bundle {
	return newBundle("")
}

// LoadBundle 加载资源包目录；缺失或损坏的部分降级为空表，不返回错误
func LoadBundle(dir string, l logger.Logger) *Bundle {
	l = logger.OrNoop(l)
	b := newBundle(dir)
	if dir == "" {
		return b
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		l.Warn("resource bundle not found, resolving with placeholders", "dir", dir)
		return b
	}

	b.loadManifest(l)
	load := gameconfig.NewFileJSONLoader(dir, l)

	if rows, ok := loadTable[characterRow](load, tableCharacters, l); ok {
		for _, r := range rows {
			b.characters[r.ID] = CharacterDescriptor{
				ID: r.ID, Name: r.Name, Attribute: r.Attribute, WeaponType: r.WeaponType, Star: r.Star,
			}
		}
	}
	if rows, ok := loadTable[weaponRow](load, tableWeapons, l); ok {
		for _, r := range rows {
			b.weapons[r.ID] = WeaponDescriptor{ID: r.ID, Name: r.Name, Type: r.Type, Star: r.Star}
		}
	}
	if rows, ok := loadTable[relicRow](load, tableRelics, l); ok {
		for _, r := range rows {
			monsterID, rarity := SplitRelicID(r.ID)
			if r.MonsterID != 0 {
				monsterID = r.MonsterID
			}
			cost := r.Cost
			if cost != 1 && cost != 3 && cost != 4 {
				l.Warn("relic row has invalid cost", "id", r.ID, "cost", r.Cost)
				cost = placeholderRelicCost
			}
			b.relics[r.ID] = RelicDescriptor{
				ID: r.ID, Name: r.Name, MonsterID: monsterID, RarityCode: rarity, Cost: cost, SetID: r.SetID,
			}
		}
	}
	if rows, ok := loadTable[propertyRow](load, tableProperties, l); ok {
		for _, r := range rows {
			band := Band(r.Band)
			if band != BandDirect && band != BandThousand && band != BandTenThousand {
				l.Warn("property row has unknown band, skipped", "id", r.ID, "band", r.Band)
				continue
			}
			b.properties[propertyKey{band: band, key: r.ID}] = PropertyDescriptor{
				Band: band, Key: r.ID, Name: r.Name, Percentage: r.Percentage, Prescaled: r.Prescaled,
			}
		}
	}
	if rows, ok := loadTable[setRow](load, tableSets, l); ok {
		for _, r := range rows {
			b.sets[r.ID] = SetDescriptor{ID: r.ID, Name: r.Name}
		}
	}

	codePath := filepath.Join(dir, codeTableFile)
	if _, err := os.Stat(codePath); err == nil {
		codes, err := LoadCodeTable(codePath)
		if err != nil {
			l.Warn("failed to load relic code table", "path", codePath, "error", err)
		} else {
			b.codes = codes
		}
	}
	return b
}

func (b *Bundle) loadManifest(l logger.Logger) {
	path := filepath.Join(b.Dir, manifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		l.Warn("bundle manifest missing", "path", path)
		return
	}
	if err := json.Unmarshal(data, &b.Manifest); err != nil {
		l.Warn("bundle manifest unreadable", "path", path, "error", err)
		return
	}
	if b.Manifest.Version == "" {
		return
	}
	v, err := version.NewVersion(b.Manifest.Version)
	if err != nil {
		l.Warn("bundle manifest has invalid version", "path", path, "version", b.Manifest.Version)
		return
	}
	b.version = v
}

func loadTable[T any](load gameconfig.JSONLoader, table string, l logger.Logger) ([]T, bool) {
	raw, err := load(table)
	if err != nil {
		l.Warn("failed to load bundle table", "table", table, "error", err)
		return nil, false
	}
	rows, err := gameconfig.DecodeRows[T](raw)
	if err != nil {
		l.Warn("failed to decode bundle table", "table", table, "error", err)
		return nil, false
	}
	return rows, true
}

// Version 资源包版本，未声明时为 nil
func (b *Bundle) Version() *version.Version {
	return b.version
}

// Stats 各表行数
func (b *Bundle) Stats() map[Category]int {
	return map[Category]int{
		CategoryCharacter: len(b.characters),
		CategoryWeapon:    len(b.weapons),
		CategoryRelic:     len(b.relics),
		CategoryProperty:  len(b.properties),
		CategorySet:       len(b.sets),
	}
}
