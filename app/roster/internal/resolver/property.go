package resolver

// Band 词条 ID 的量级区间
type Band string

const (
	BandNone        Band = ""
	BandDirect      Band = "direct"
	BandThousand    Band = "thousand"
	BandTenThousand Band = "ten_thousand"
)

// prescaledThreshold 严格大于该值才视为被放大 100 倍
const prescaledThreshold = 100

// ClassifyProperty 按量级选择区间并得到缩减后的 key
//
//	0-99        直接使用
//	1000-9999   id % 1000
//	10000-99999 id % 10000
func ClassifyProperty(rawID int) (Band, int) {
	switch {
	case rawID >= 0 && rawID <= 99:
		return BandDirect, rawID
	case rawID >= 1000 && rawID <= 9999:
		return BandThousand, rawID % 1000
	case rawID >= 10000 && rawID <= 99999:
		return BandTenThousand, rawID % 10000
	default:
		return BandNone, 0
	}
}

// Normalize 按解析出的百分比标记归一化，绝不只凭量级判断
func (d PropertyDescriptor) Normalize(raw float64) float64 {
	if !d.Percentage || !d.Prescaled {
		return raw
	}
	if raw > prescaledThreshold {
		return raw / 100
	}
	return raw
}

type propertyKey struct {
	band Band
	key  int
}
