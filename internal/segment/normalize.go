// Package segment 实现启发式的段落切分算法
// 把从PDF等文档中抽取出的含噪文本流转换为干净的段落序列，
// 供下游的向量化和检索流程使用
package segment

import (
	"regexp"
	"strings"
)

var (
	lineEndingPattern = regexp.MustCompile(`\r\n?`)
	multiBreakPattern = regexp.MustCompile(`\n{3,}`)
	hspacePattern     = regexp.MustCompile(`[ \t]+`)
)

// Normalize 归一化文本中的换行与空白
// 统一所有换行符为\n，三个及以上连续换行压缩为两个，
// 连续的空格和制表符压缩为单个空格，并去除首尾空白
// 纯函数，对任意输入都不会失败，且满足幂等性
func Normalize(text string) string {
	text = lineEndingPattern.ReplaceAllString(text, "\n")
	text = multiBreakPattern.ReplaceAllString(text, "\n\n")
	text = hspacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
