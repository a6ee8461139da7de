// 分词器测试模拟。
package mocks

// CharTokenizer 把每个字符计为一个 token，让预算边界可精确控制。
type CharTokenizer struct{}

func (CharTokenizer) CountTokens(text string) int {
	return len([]rune(text))
}

// FixedTokenizer 对任意文本返回固定 token 数。
type FixedTokenizer struct {
	Tokens int
}

func (f FixedTokenizer) CountTokens(string) int {
	return f.Tokens
}
