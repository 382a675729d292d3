package vote

// 会话里的选择集合用切片表示（JSON友好），这里集中放集合运算。

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// intersect 保留list中属于allowed的元素，保持原顺序
func intersect(list []string, allowed []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if containsString(allowed, v) {
			out = append(out, v)
		}
	}
	return out
}

// subtract 去掉list中属于removed的元素，保持原顺序
func subtract(list []string, removed []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !containsString(removed, v) {
			out = append(out, v)
		}
	}
	return out
}

// union 追加addition中尚不存在的元素，保持原顺序
func union(list []string, addition []string) []string {
	out := append([]string(nil), list...)
	for _, v := range addition {
		if !containsString(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// replacePageScoped 页内替换：current中属于pageIDs的条目被picked∩pageIDs
// 整体替换，页外的条目原样保留。翻页选择不会抹掉其他页已做的选择。
func replacePageScoped(current, pageIDs, picked []string) []string {
	kept := subtract(current, pageIDs)
	return union(kept, intersect(picked, pageIDs))
}
