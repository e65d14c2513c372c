// Package capture 外部抓包解析服务返回的通知记录
package capture

import (
	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
)

// 通知类型名
const (
	NotifyBasicInfo   = "BasicInfoNotify"
	NotifyRoleList    = "RoleListNotify"
	NotifyWeaponItem  = "WeaponItemNotify"
	NotifyPhantomItem = "PhantomItemNotify"
)

// BasicInfoNotify 属性 key
const (
	AttrName       = 2
	AttrLevel      = 10
	AttrWorldLevel = 12
)

// ErrNotifyMissing 通知不存在
var ErrNotifyMissing = errors.New("capture: notify missing")

// Payload 按通知类型名索引的抓包记录
type Payload map[string]any

// Has 是否包含某类通知
func (p Payload) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Decode 将通知解码为 out，数字字符串与浮点数可转为整数
func (p Payload) Decode(name string, out any) error {
	raw, ok := p[name]
	if !ok || raw == nil {
		return ErrNotifyMissing
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return errors.Wrapf(err, "decode %s", name)
	}
	return nil
}

// Attribute 基础属性
type Attribute struct {
	Key      int    `mapstructure:"key"`
	IntValue int64  `mapstructure:"int64"`
	StrValue string `mapstructure:"string"`
}

// BasicInfoNotify 账号基础信息
type BasicInfoNotify struct {
	ID         string      `mapstructure:"id"`
	Attributes []Attribute `mapstructure:"attributes"`
}

// Attr 查找属性
func (n *BasicInfoNotify) Attr(key int) (Attribute, bool) {
	for _, a := range n.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return Attribute{}, false
}

// KeyValue 技能与技能树的键值对
type KeyValue struct {
	Key   int `mapstructure:"key"`
	Value int `mapstructure:"value"`
}

// Role 角色记录；RoleID 为指针以区分缺失与 0
type Role struct {
	RoleID         *int       `mapstructure:"roleId"`
	Level          int        `mapstructure:"level"`
	Breakthrough   int        `mapstructure:"breakthrough"`
	ResonantChain  int        `mapstructure:"resonantChainGroupIndex"`
	Skills         []KeyValue `mapstructure:"skillMap"`
	SkillNodeState []KeyValue `mapstructure:"skillNodeState"`
}

// RoleListNotify 角色列表
type RoleListNotify struct {
	Roles []Role `mapstructure:"roleList"`
}

// Weapon 武器实例，RoleID 为装备者，0 表示未装备
type Weapon struct {
	IncID        int64 `mapstructure:"incId"`
	ID           int   `mapstructure:"weaponId"`
	Level        int   `mapstructure:"weaponLevel"`
	Breakthrough int   `mapstructure:"weaponBreachLevel"`
	Refinement   int   `mapstructure:"weaponResonLevel"`
	RoleID       int   `mapstructure:"roleId"`
}

// WeaponItemNotify 武器背包
type WeaponItemNotify struct {
	Items []Weapon `mapstructure:"weaponItemList"`
}

// PhantomProp 声骸词条
type PhantomProp struct {
	ID    int     `mapstructure:"phantomPropId"`
	Value float64 `mapstructure:"value"`
}

// Phantom 声骸实例；Cost 只作记录，实际以解析结果为准
type Phantom struct {
	IncID         int64         `mapstructure:"incId"`
	ID            int           `mapstructure:"phantomId"`
	Level         int           `mapstructure:"phantomLevel"`
	Cost          int           `mapstructure:"cost"`
	FetterGroupID int           `mapstructure:"fetterGroupId"`
	MainProps     []PhantomProp `mapstructure:"mainProps"`
	SubProps      []PhantomProp `mapstructure:"subProps"`
}

// EquipInfo 角色装备的声骸引用
type EquipInfo struct {
	RoleID int     `mapstructure:"roleId"`
	IncIDs []int64 `mapstructure:"phantomIncIds"`
}

// PhantomItemNotify 声骸背包
type PhantomItemNotify struct {
	Items  []Phantom   `mapstructure:"phantomItemList"`
	Equips []EquipInfo `mapstructure:"equipInfo"`
}
