package config

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// MergeConfig 用 src 中的非零值覆盖 dst，返回 dst
//   - dst、src 都为 nil 返回错误
//   - 任一方为 nil 时直接返回另一方
//
// 零值不参与覆盖，所以布尔开关只能从 false 打开，不能从 true 关闭
func MergeConfig[T any](dst, src *T) (*T, error) {
	if dst == nil && src == nil {
		return nil, errors.Wrap(ErrMergeFailed, "both dst and src are nil")
	}
	if dst == nil {
		return src, nil
	}
	if src == nil {
		return dst, nil
	}

	if err := mergeValues(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem()); err != nil {
		return nil, errors.Mark(err, ErrMergeFailed)
	}
	return dst, nil
}

func mergeValues(dst, src reflect.Value) error {
	if !src.IsValid() || src.IsZero() {
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		return mergeStruct(dst, src)
	case reflect.Map:
		return mergeMap(dst, src)
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return mergeValues(dst.Elem(), src.Elem())
	default:
		// 基本类型与切片整体覆盖
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}

func mergeStruct(dst, src reflect.Value) error {
	t := src.Type()
	for i := 0; i < src.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		df := dst.Field(i)
		if !df.CanSet() {
			continue
		}
		if err := mergeValues(df, src.Field(i)); err != nil {
			return errors.Wrapf(err, "field %s", field.Name)
		}
	}
	return nil
}

func mergeMap(dst, src reflect.Value) error {
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	iter := src.MapRange()
	for iter.Next() {
		key, sv := iter.Key(), iter.Value()
		existing := dst.MapIndex(key)
		if !existing.IsValid() {
			dst.SetMapIndex(key, sv)
			continue
		}

		// map 元素不可寻址，复制一份合并后写回
		merged := reflect.New(dst.Type().Elem()).Elem()
		merged.Set(existing)
		if err := mergeValues(merged, sv); err != nil {
			return err
		}
		dst.SetMapIndex(key, merged)
	}
	return nil
}
