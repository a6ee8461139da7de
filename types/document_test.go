package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Key(t *testing.T) {
	d := Document{Metadata: map[string]string{
		MetaSourceID:    "Policy.PDF",
		MetaSectionName: " Benefits ",
	}}
	assert.Equal(t, "policy.pdf|benefits", d.Key())

	// 原始文件路径优先于 source_id
	d.Metadata[MetaOriginalFilepath] = "/corpus/Policy.pdf"
	assert.Equal(t, "/corpus/policy.pdf|benefits", d.Key())

	empty := Document{}
	assert.Equal(t, "|", empty.Key())
}

func TestDocument_Title(t *testing.T) {
	d := Document{Metadata: map[string]string{
		MetaSourceID:        "policy.pdf",
		MetaSectionName:     "benefits",
		MetaReferenceNumber: "42",
	}}
	// 字段顺序固定，缺失的 doc_identifier 静默省略
	assert.Equal(t, "policy.pdf benefits 42 ", d.Title())

	assert.Empty(t, Document{}.Title())
}

func TestDocument_Meta(t *testing.T) {
	assert.Empty(t, Document{}.Meta(MetaSourceID))

	d := Document{Metadata: map[string]string{MetaSummary: "s"}}
	assert.Equal(t, "s", d.Meta(MetaSummary))
	assert.Empty(t, d.Meta(MetaSectionName))
}

func TestContextBlock_Text(t *testing.T) {
	block := ContextBlock{Entries: []ContextEntry{
		{Title: "policy.pdf benefits ", Content: "dental coverage"},
		{Title: "policy.pdf limits ", Content: "annual limit"},
	}}

	text := block.Text()
	assert.Contains(t, text, "DOCUMENT TITLE: policy.pdf benefits \n")
	assert.Contains(t, text, "DOCUMENT CONTENT: dental coverage\n")
	assert.Contains(t, text, "------------\n")
	assert.Contains(t, text, "DOCUMENT CONTENT: annual limit\n")
}
