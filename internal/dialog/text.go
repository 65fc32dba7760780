package dialog

import (
	"strings"
	"unicode"
)

// normalize 转小写并把标点替换为空格，便于按词匹配
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), "'", ""))
}

// phraseSet 已归一化的文本，支持整词短语匹配
type phraseSet string

func newPhraseSet(text string) phraseSet {
	return phraseSet(" " + normalize(text) + " ")
}

func (p phraseSet) has(phrase string) bool {
	return strings.Contains(string(p), " "+normalize(phrase)+" ")
}

// count 返回命中的短语数
func (p phraseSet) count(phrases []string) int {
	n := 0
	for _, ph := range phrases {
		if p.has(ph) {
			n++
		}
	}
	return n
}

func (p phraseSet) words() []string {
	return strings.Fields(string(p))
}
