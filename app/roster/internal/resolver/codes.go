package resolver

import (
	_ "embed"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed relic_codes.yaml
var defaultCodeTable []byte

// CodeTable 旧编号声骸到现行声骸 ID 的映射，一个编号可能对应多个候选
type CodeTable struct {
	codes map[int][]int
}

type codeFile struct {
	Codes []struct {
		Code   int   `yaml:"code"`
		Relics []int `yaml:"relics"`
	} `yaml:"codes"`
}

// ParseCodeTable 解析 yaml 编码表
func ParseCodeTable(data []byte) (*CodeTable, error) {
	var f codeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse relic code table")
	}
	t := &CodeTable{codes: make(map[int][]int, len(f.Codes))}
	for _, c := range f.Codes {
		if len(c.Relics) == 0 {
			continue
		}
		t.codes[c.Code] = append(t.codes[c.Code], c.Relics...)
	}
	return t, nil
}

// LoadCodeTable 从文件加载编码表
func LoadCodeTable(path string) (*CodeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read relic code table %s", path)
	}
	return ParseCodeTable(data)
}

// DefaultCodeTable 内置编码表
func DefaultCodeTable() *CodeTable {
	t, err := ParseCodeTable(defaultCodeTable)
	if err != nil {
		return &CodeTable{codes: map[int][]int{}}
	}
	return t
}

// Lookup 候选声骸 ID，顺序即编码表中的顺序
func (t *CodeTable) Lookup(code int) []int {
	if t == nil {
		return nil
	}
	return t.codes[code]
}

// Len 编码数量
func (t *CodeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.codes)
}
