package types

import "strings"

// 文档元数据的固定字段名。标题合成与归因构建按此顺序读取，
// 缺失字段静默跳过。
const (
	MetaSourceID         = "source_id"
	MetaSectionName      = "section_name"
	MetaDocIdentifier    = "doc_identifier"
	MetaReferenceNumber  = "reference_number"
	MetaRelevancyScore   = "relevancy_score"
	MetaSummary          = "summary"
	MetaSummaryReasoning = "summary_reasoning"
	MetaOriginalFilepath = "original_filepath"
)

// titleFields 是合成文档标题时参与拼接的元数据字段及其顺序。
var titleFields = []string{MetaSourceID, MetaSectionName, MetaDocIdentifier, MetaReferenceNumber}

// Document 是一条检索到的语料文档。检索返回后不再修改。
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Score 是检索阶段计算的相关性分数，同时写入
	// Metadata[MetaRelevancyScore] 供归因使用。
	Score float64 `json:"score"`
}

// Meta 返回指定元数据字段，缺失时返回空字符串。
func (d Document) Meta(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// Key 返回跨轮次去重使用的身份键：规范化的「来源路径|章节」对。
// 该键在所有轮次中保持稳定。
func (d Document) Key() string {
	source := d.Meta(MetaOriginalFilepath)
	if source == "" {
		source = d.Meta(MetaSourceID)
	}
	section := d.Meta(MetaSectionName)
	return strings.ToLower(strings.TrimSpace(source)) + "|" + strings.ToLower(strings.TrimSpace(section))
}

// Title 按固定字段顺序拼接存在的标识元数据，空格分隔。
// 缺失字段直接省略，不报错。
func (d Document) Title() string {
	var b strings.Builder
	for _, field := range titleFields {
		if v := d.Meta(field); v != "" {
			b.WriteString(v)
			b.WriteString(" ")
		}
	}
	return b.String()
}

// ContextEntry 是打包进上下文块的单个 (标题, 内容) 条目。
type ContextEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ContextBlock 是一个 token 预算内的上下文块。
type ContextBlock struct {
	Entries []ContextEntry `json:"entries"`

	// DocsUsed 与 TokensUsed 是该块的使用量统计。
	DocsUsed   int `json:"docs_used"`
	TokensUsed int `json:"tokens_used"`
}

// Text 将块内条目渲染为交给生成调用的上下文文本。
func (b ContextBlock) Text() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for _, e := range b.Entries {
		sb.WriteString("DOCUMENT TITLE: ")
		sb.WriteString(e.Title)
		sb.WriteString("\n")
		sb.WriteString("DOCUMENT CONTENT: ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("-", 12))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// UsedArticle 是归因列表中的 (标签, 相关性分数) 对。
type UsedArticle struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}
