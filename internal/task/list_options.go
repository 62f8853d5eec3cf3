package task

// ListOptions 控制 List 查询的过滤与分页行为。
type ListOptions struct {
	Status Status
	Limit  int
	Offset int
}

// ListOption 以函数式选项调整 ListOptions。
type ListOption func(*ListOptions)

// WithStatus 仅返回指定状态的任务申请。
func WithStatus(status Status) ListOption {
	return func(o *ListOptions) {
		o.Status = status
	}
}

// WithLimit 限制单次查询返回的条目数。
func WithLimit(limit int) ListOption {
	return func(o *ListOptions) {
		o.Limit = limit
	}
}

// WithOffset 跳过前 offset 条记录。
func WithOffset(offset int) ListOption {
	return func(o *ListOptions) {
		o.Offset = offset
	}
}

const defaultListLimit = 100

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{Limit: defaultListLimit}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Limit <= 0 {
		options.Limit = defaultListLimit
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	return options
}
