package segment

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// 句末标点，兼容半角和全角
const sentenceTerminators = ".!?:;。！？：；"

var (
	// 中文章节标题，如"第一章"、"第十二节"
	cjkHeadingPattern = regexp.MustCompile(`^第[一二三四五六七八九十百千万零〇两]+[章节篇]`)
	// 编号列表项，如"1."或"3、"
	numberedItemPattern = regexp.MustCompile(`^[0-9]+[.、]`)
)

// isBoundary 判断当前行是否触发新段落
// 任一条件命中即触发：
//   - 累积段落已以句末标点结束
//   - 行以数字或项目符号开头
//   - 前一原始行很长而当前行很短，多见于标题或版式断裂
//   - 行以结构化标记开头（章节标题或编号列表）
func (s *Segmenter) isBoundary(current, line, prevRaw string) bool {
	if endsWithTerminator(current) {
		return true
	}
	if startsWithListMarker(line) {
		return true
	}
	if s.isShortAfterLong(line, prevRaw) {
		return true
	}
	return hasStructuralMarker(line)
}

// isContinuation 判断当前行是否为上一行的软换行延续
// 前提是显式触发条件均未命中：累积段落非空，
// 且下一行不以结构化标记开头时，按续行拼接
func isContinuation(current, next string) bool {
	return current != "" && !hasStructuralMarker(next)
}

// endsWithTerminator 判断文本是否以句末标点结束
func endsWithTerminator(text string) bool {
	if text == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	for _, t := range sentenceTerminators {
		if last == t {
			return true
		}
	}
	return false
}

// startsWithListMarker 判断行是否以列表标记开头
// 列表标记包括数字和常见项目符号
func startsWithListMarker(line string) bool {
	first, _ := utf8.DecodeRuneInString(line)
	if unicode.IsDigit(first) {
		return true
	}
	switch first {
	case '•', '-', '*':
		return true
	}
	return false
}

// isShortAfterLong 判断是否出现"长行后的短行"
// 这种形态多为夹在正文中的标题或抽取噪声
// 行长按字符数计算，前一行按归一化后未去首尾空白的原始行计算
func (s *Segmenter) isShortAfterLong(line, prevRaw string) bool {
	if prevRaw == "" {
		return false
	}
	return utf8.RuneCountInString(line) < s.cfg.ShortLineMax &&
		utf8.RuneCountInString(prevRaw) > s.cfg.LongLineMin
}

// hasStructuralMarker 判断行是否以结构化标记开头
func hasStructuralMarker(line string) bool {
	if line == "" {
		return false
	}
	return cjkHeadingPattern.MatchString(line) || numberedItemPattern.MatchString(line)
}
