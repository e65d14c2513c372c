package model

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Digest 条目内容摘要，用于跳过无变化的写入
func (r *Roster) Digest() string {
	d := xxhash.New()
	for _, e := range r.Entries {
		// 结构体字段顺序固定，json 输出稳定
		b, _ := json.Marshal(e)
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{'\n'})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
