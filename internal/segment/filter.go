package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 纯数字、空白与符号构成的噪声段落，常见于页码和页眉页脚
var noisePattern = regexp.MustCompile(`^[0-9\s\pP\pS]+$`)

// filter 过滤掉不包含有效语义内容的段落
// 只做丢弃，不拆分也不合并，保留原有顺序
func (s *Segmenter) filter(paragraphs []string) []string {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if s.shouldDrop(p) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// shouldDrop 判断段落是否应当丢弃
// 满足任一条件即丢弃：
//   - 段落过短，不足以承载可检索的语义
//   - 段落仅由数字、空白和符号构成
//   - 段落中存在同一字符的超长连续重复，多为OCR或抽取产生的噪声
func (s *Segmenter) shouldDrop(p string) bool {
	if utf8.RuneCountInString(p) < s.cfg.MinSegmentLen {
		return true
	}
	if noisePattern.MatchString(p) {
		return true
	}
	return hasRepeatRun(p, s.cfg.MaxRepeatRun)
}

// hasRepeatRun 判断文本中是否存在同一字符连续重复超过max次
func hasRepeatRun(text string, max int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > max {
			return true
		}
	}
	return false
}
