package idgen

// Generator ID生成器接口
type Generator interface {
	// NextID 生成下一个唯一ID
	NextID() (int64, error)
}

// Func 函数适配为 Generator
type Func func() (int64, error)

func (f Func) NextID() (int64, error) { return f() }
