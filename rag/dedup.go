package rag

import "github.com/BaSui01/answerflow/types"

// Deduplicate 保序合并多个文档列表。
// 按 Document.Key() 丢弃后出现的重复项，非重复项不重排。
// 幂等：对已去重的列表再次调用是 no-op。
func Deduplicate(lists ...[]types.Document) []types.Document {
	total := 0
	for _, list := range lists {
		total += len(list)
	}

	seen := make(map[string]bool, total)
	merged := make([]types.Document, 0, total)

	for _, list := range lists {
		for _, doc := range list {
			key := doc.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, doc)
		}
	}

	return merged
}
