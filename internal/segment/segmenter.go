package segment

import (
	"strings"
)

// Segment 表示切分得到的一个段落
type Segment struct {
	Text  string `json:"text"`  // 段落文本
	Index int    `json:"index"` // 段落在文档中的位置序号，从0开始
}

// Config 段落切分配置
// 阈值均为可调参数，默认值见DefaultConfig
type Config struct {
	ShortLineMax  int // 短行判定阈值：行字符数小于该值视为短行
	LongLineMin   int // 长行判定阈值：前一原始行字符数大于该值视为长行
	MinSegmentLen int // 过滤阈值：段落字符数小于该值则丢弃
	MaxRepeatRun  int // 过滤阈值：同一字符连续重复超过该值则丢弃
}

// DefaultConfig 返回默认切分配置
func DefaultConfig() Config {
	return Config{
		ShortLineMax:  20,
		LongLineMin:   40,
		MinSegmentLen: 10,
		MaxRepeatRun:  10,
	}
}

// Segmenter 段落切分器
// 将从文档中抽取出的原始文本切分为有序的段落序列
// 流程分三步：文本归一化、行边界检测、噪声过滤
type Segmenter struct {
	cfg Config
}

// NewSegmenter 创建段落切分器
// 零值Config等同于DefaultConfig
// 其余情况下MinSegmentLen为0表示关闭长度过滤，负值回退到默认值
func NewSegmenter(cfg Config) *Segmenter {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.ShortLineMax <= 0 {
		cfg.ShortLineMax = DefaultConfig().ShortLineMax
	}
	if cfg.LongLineMin <= 0 {
		cfg.LongLineMin = DefaultConfig().LongLineMin
	}
	if cfg.MinSegmentLen < 0 {
		cfg.MinSegmentLen = DefaultConfig().MinSegmentLen
	}
	if cfg.MaxRepeatRun <= 0 {
		cfg.MaxRepeatRun = DefaultConfig().MaxRepeatRun
	}
	return &Segmenter{cfg: cfg}
}

// Split 将原始文本切分为段落序列
// 对任意输入都不会失败：空文本或纯空白文本返回空切片
func (s *Segmenter) Split(text string) []Segment {
	paragraphs := s.groupLines(Normalize(text))
	paragraphs = s.filter(paragraphs)

	segments := make([]Segment, 0, len(paragraphs))
	for i, p := range paragraphs {
		segments = append(segments, Segment{
			Text:  p,
			Index: i,
		})
	}
	return segments
}

// groupLines 逐行扫描归一化后的文本，把行重组为段落
// 只维护一个累积段落，单次前向遍历完成
func (s *Segmenter) groupLines(text string) []string {
	if text == "" {
		return nil
	}

	rawLines := strings.Split(text, "\n")
	var paragraphs []string
	var current string
	var prevRaw string

	flush := func() {
		if current != "" {
			paragraphs = append(paragraphs, current)
			current = ""
		}
	}

	for i, raw := range rawLines {
		line := strings.TrimSpace(raw)
		var next string
		if i+1 < len(rawLines) {
			next = strings.TrimSpace(rawLines[i+1])
		}

		// 空行只作为边界信号，不产生内容
		if line == "" {
			flush()
			prevRaw = raw
			continue
		}

		// 显式的新段落触发条件优先于续行推断
		if s.isBoundary(current, line, prevRaw) {
			flush()
			current = line
		} else if isContinuation(current, next) {
			current += " " + line
		} else {
			flush()
			current = line
		}
		prevRaw = raw
	}
	flush()

	return paragraphs
}
