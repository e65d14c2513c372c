package idgen

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/sonyflake"
)

// Epoch 运行 ID 的起始时间
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrGeneratorUnavailable 时钟早于 Epoch 或机器号无效
var ErrGeneratorUnavailable = errors.New("idgen: sonyflake generator unavailable")

type sonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflake 创建运行 ID 生成器，多副本部署时 machineID 必须各不相同
func NewSonyflake(machineID uint16) (Generator, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: Epoch,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if sf == nil {
		return nil, errors.Wrapf(ErrGeneratorUnavailable, "machine id %d", machineID)
	}
	return &sonyflakeGenerator{sf: sf}, nil
}

func (g *sonyflakeGenerator) NextID() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, errors.Wrap(err, "failed to generate run id")
	}
	return int64(id), nil
}

// MachineOf 从 ID 中取出生成它的机器号
func MachineOf(id int64) uint16 {
	return uint16(sonyflake.MachineID(uint64(id)))
}
