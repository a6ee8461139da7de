package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatorTokenizer(t *testing.T) {
	e := NewEstimatorTokenizer()

	assert.Zero(t, e.CountTokens(""))
	assert.Equal(t, 1, e.CountTokens("a"), "非空文本至少 1 token")

	// ASCII 约 4 字符/token
	assert.Equal(t, 25, e.CountTokens(strings.Repeat("x", 100)))

	// CJK 约 1.5 字符/token，明显比 ASCII 密
	ascii := e.CountTokens(strings.Repeat("x", 30))
	cjk := e.CountTokens(strings.Repeat("中", 30))
	assert.Greater(t, cjk, ascii)
	assert.Equal(t, 20, cjk)
}

func TestNewTokenizer_EmptyModelUsesEstimator(t *testing.T) {
	tok := NewTokenizer("", nil)
	assert.IsType(t, &EstimatorTokenizer{}, tok)
}

func TestNewTokenizer_KnownModel(t *testing.T) {
	tok := NewTokenizer("gpt-4o", nil)
	assert.IsType(t, &tiktokenTokenizer{}, tok)
}
