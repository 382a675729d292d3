package vote

// PageSize 平台下拉框单页选项上限
const PageSize = 25

// Page 一页选项的切片结果
type Page[T any] struct {
	Index int // 钳制后的页号
	Count int // 总页数，至少为1
	Items []T // 当前页的切片
}

// Paginate 把选项列表按PageSize分页。
// requestedIndex越界时钳制进[0, Count-1]而不是报错：
// 第0页点"上一页"、末页点"下一页"都只是重绘当前页。
func Paginate[T any](items []T, requestedIndex int) Page[T] {
	count := (len(items) + PageSize - 1) / PageSize
	if count < 1 {
		count = 1
	}

	index := requestedIndex
	if index < 0 {
		index = 0
	}
	if index > count-1 {
		index = count - 1
	}

	start := index * PageSize
	end := start + PageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return Page[T]{Index: index, Count: count, Items: items[start:end]}
}
