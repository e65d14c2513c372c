package gameconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

// ErrTableNotFound 表文件不存在；JSONLoader 不返回该错误，只用于 Stat 类调用方区分
var ErrTableNotFound = errors.New("gameconfig: table not found")

// JSONLoader 按表名加载一张 JSON 表（行数组）
type JSONLoader func(tableName string) ([]map[string]interface{}, error)

// NewFileJSONLoader 创建本地目录 JSON 加载器
// 缺失的表按空表处理并记录 warn；singletons 中的表缺失时返回 [{}]
func NewFileJSONLoader(dataDir string, l logger.Logger, singletons ...string) JSONLoader {
	l = logger.OrNoop(l)
	single := make(map[string]bool, len(singletons))
	for _, name := range singletons {
		single[strings.ToLower(name)] = true
	}

	return func(tableName string) ([]map[string]interface{}, error) {
		filePath := TablePath(dataDir, tableName)

		data, err := os.ReadFile(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.Warn("optional table file not found, initializing as empty",
					"table", tableName,
					"path", filePath)
				if single[strings.ToLower(tableName)] {
					return []map[string]interface{}{{}}, nil
				}
				return []map[string]interface{}{}, nil
			}
			return nil, fmt.Errorf("failed to read table file %s: %w", filePath, err)
		}

		var rows []map[string]interface{}
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("failed to unmarshal table file %s: %w", filePath, err)
		}
		return rows, nil
	}
}

// TablePath 表文件路径，表名统一小写
func TablePath(dataDir, tableName string) string {
	return filepath.Join(dataDir, strings.ToLower(tableName)+".json")
}

// DecodeRows 将行解码为 T，字段按 json tag 匹配，允许字符串与数字互转
func DecodeRows[T any](rows []map[string]interface{}) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &v,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(row); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}
