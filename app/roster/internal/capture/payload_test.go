package capture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWeaklyTyped(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{
		"BasicInfoNotify": {"id": 100200300, "attributes": [
			{"key": 2, "string": "Rover"}, {"key": 10, "int64": "62"}
		]},
		"RoleListNotify": {"roleList": [
			{"roleId": 1205, "level": 70.0, "skillMap": [{"key": "120501", "value": 7}]},
			{"level": 10}
		]}
	}`), &p))

	var basic BasicInfoNotify
	require.NoError(t, p.Decode(NotifyBasicInfo, &basic))
	assert.Equal(t, "100200300", basic.ID)
	lvl, ok := basic.Attr(AttrLevel)
	require.True(t, ok)
	assert.EqualValues(t, 62, lvl.IntValue)
	name, _ := basic.Attr(AttrName)
	assert.Equal(t, "Rover", name.StrValue)
	_, ok = basic.Attr(AttrWorldLevel)
	assert.False(t, ok)

	var roles RoleListNotify
	require.NoError(t, p.Decode(NotifyRoleList, &roles))
	require.Len(t, roles.Roles, 2)
	require.NotNil(t, roles.Roles[0].RoleID)
	assert.Equal(t, 1205, *roles.Roles[0].RoleID)
	assert.Equal(t, 70, roles.Roles[0].Level)
	assert.Equal(t, KeyValue{Key: 120501, Value: 7}, roles.Roles[0].Skills[0])
	assert.Nil(t, roles.Roles[1].RoleID)
}

func TestDecodeMissingAndMalformed(t *testing.T) {
	p := Payload{NotifyWeaponItem: "not a map"}

	var weapons WeaponItemNotify
	assert.Error(t, p.Decode(NotifyWeaponItem, &weapons))
	assert.ErrorIs(t, p.Decode(NotifyPhantomItem, &PhantomItemNotify{}), ErrNotifyMissing)
	assert.True(t, p.Has(NotifyWeaponItem))
	assert.False(t, p.Has(NotifyRoleList))
}
