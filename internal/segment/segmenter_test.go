package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("LineEndings", func(t *testing.T) {
		assert.Equal(t, "a\nb\nc", Normalize("a\r\nb\rc"))
	})

	t.Run("CollapseMultipleBreaks", func(t *testing.T) {
		assert.Equal(t, "a\n\nb", Normalize("a\n\n\n\n\nb"))
	})

	t.Run("CollapseHorizontalWhitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", Normalize("a   b\t\tc"))
	})

	t.Run("TrimWholeText", func(t *testing.T) {
		assert.Equal(t, "abc", Normalize("  \n abc \n  "))
	})

	t.Run("Idempotent", func(t *testing.T) {
		inputs := []string{
			"hello world",
			"第一章 引言\n\n正文内容从这里开始。",
			"a\r\n\r\n\r\nb\t\tc  d",
			"",
		}
		for _, input := range inputs {
			once := Normalize(input)
			assert.Equal(t, once, Normalize(once))
		}
	})
}

func TestNewSegmenterConfig(t *testing.T) {
	t.Run("ZeroConfigUsesDefaults", func(t *testing.T) {
		s := NewSegmenter(Config{})
		assert.Equal(t, DefaultConfig(), s.cfg)
	})

	t.Run("NegativeFieldsFallBack", func(t *testing.T) {
		s := NewSegmenter(Config{
			ShortLineMax:  -1,
			LongLineMin:   -1,
			MinSegmentLen: -1,
			MaxRepeatRun:  -1,
		})
		assert.Equal(t, DefaultConfig(), s.cfg)
	})

	t.Run("ZeroMinSegmentLenDisablesLengthFilter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinSegmentLen = 0
		s := NewSegmenter(cfg)
		assert.Equal(t, 0, s.cfg.MinSegmentLen)
		assert.False(t, s.shouldDrop("短句啊"))

		segments := s.Split("很短的段落啊\n\n另一个很短段落")
		assert.Len(t, segments, 2)
	})
}

func TestSplitBasic(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Empty(t, s.Split(""))
		assert.Empty(t, s.Split("   \n\t\n  "))
	})

	t.Run("SingleParagraph", func(t *testing.T) {
		segments := s.Split("这是一个完整的段落，内容足够长，可以通过过滤。")
		assert.Len(t, segments, 1)
		assert.Equal(t, 0, segments[0].Index)
	})

	t.Run("IndexOrder", func(t *testing.T) {
		text := "第一段的内容，这里写得足够长。\n\n第二段的内容，这里也足够长。\n\n第三段的内容，同样足够长了。"
		segments := s.Split(text)
		assert.Len(t, segments, 3)
		for i, seg := range segments {
			assert.Equal(t, i, seg.Index)
		}
	})
}

func TestGroupLines(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	t.Run("BlankLineBoundary", func(t *testing.T) {
		paragraphs := s.groupLines("A.\n\nB.")
		assert.Equal(t, []string{"A.", "B."}, paragraphs)
	})

	t.Run("ContinuationJoin", func(t *testing.T) {
		text := "This is a long line that continues\nonto the next line without punctuation."
		paragraphs := s.groupLines(text)
		assert.Len(t, paragraphs, 1)
		assert.Equal(t,
			"This is a long line that continues onto the next line without punctuation.",
			paragraphs[0])
	})

	t.Run("TerminatorStartsNewParagraph", func(t *testing.T) {
		paragraphs := s.groupLines("第一句话到这里结束。\n之后是另外一句话。")
		assert.Equal(t, []string{"第一句话到这里结束。", "之后是另外一句话。"}, paragraphs)
	})

	t.Run("ListMarkerBoundary", func(t *testing.T) {
		paragraphs := s.groupLines("Intro text.\n1. First item\n2. Second item")
		assert.Equal(t, []string{"Intro text.", "1. First item", "2. Second item"}, paragraphs)
	})

	t.Run("BulletBoundary", func(t *testing.T) {
		paragraphs := s.groupLines("前面的说明文字没有标点\n• 第一项\n• 第二项")
		assert.Len(t, paragraphs, 3)
	})

	t.Run("CjkHeadingBoundary", func(t *testing.T) {
		paragraphs := s.groupLines("前一段落的正文内容没有结束标点\n第二章 方法介绍")
		assert.Equal(t, []string{"前一段落的正文内容没有结束标点", "第二章 方法介绍"}, paragraphs)
	})

	t.Run("ShortLineAfterLongLine", func(t *testing.T) {
		long := strings.Repeat("正文", 25) // 50个字符的长行
		paragraphs := s.groupLines(long + "\n短标题")
		assert.Equal(t, []string{long, "短标题"}, paragraphs)
	})

	t.Run("NoPunctuationCollapsesToOne", func(t *testing.T) {
		paragraphs := s.groupLines("第一行没有标点\n第二行也没有\n第三行还是没有")
		assert.Len(t, paragraphs, 1)
		assert.Equal(t, "第一行没有标点 第二行也没有 第三行还是没有", paragraphs[0])
	})
}

func TestFilter(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	t.Run("DropShort", func(t *testing.T) {
		assert.True(t, s.shouldDrop("42"))
		assert.True(t, s.shouldDrop("short"))
	})

	t.Run("DropNumericNoise", func(t *testing.T) {
		assert.True(t, s.shouldDrop("123 456 789 000"))
		assert.True(t, s.shouldDrop("...  12  ---  34  ..."))
	})

	t.Run("DropRepeatRun", func(t *testing.T) {
		assert.True(t, s.shouldDrop("----------------"))
		assert.True(t, s.shouldDrop("前面是正文内容............后面也是正文"))
	})

	t.Run("KeepValid", func(t *testing.T) {
		assert.False(t, s.shouldDrop("This is a valid paragraph with enough length."))
		assert.False(t, s.shouldDrop("这是一个有效的中文段落，长度足够。"))
	})

	t.Run("OrderPreserved", func(t *testing.T) {
		kept := s.filter([]string{
			"第一个有效段落，长度足够通过过滤。",
			"42",
			"第二个有效段落，长度同样足够。",
			"----------------",
			"第三个有效段落，还是足够长的。",
		})
		assert.Len(t, kept, 3)
		assert.Contains(t, kept[0], "第一个")
		assert.Contains(t, kept[1], "第二个")
		assert.Contains(t, kept[2], "第三个")
	})
}

func TestBoundaryPredicates(t *testing.T) {
	t.Run("EndsWithTerminator", func(t *testing.T) {
		assert.True(t, endsWithTerminator("Hello."))
		assert.True(t, endsWithTerminator("你好。"))
		assert.True(t, endsWithTerminator("真的吗？"))
		assert.True(t, endsWithTerminator("note:"))
		assert.False(t, endsWithTerminator("no terminator"))
		assert.False(t, endsWithTerminator(""))
	})

	t.Run("StartsWithListMarker", func(t *testing.T) {
		assert.True(t, startsWithListMarker("1) item"))
		assert.True(t, startsWithListMarker("• bullet"))
		assert.True(t, startsWithListMarker("- dash"))
		assert.True(t, startsWithListMarker("* star"))
		assert.False(t, startsWithListMarker("plain text"))
	})

	t.Run("StructuralMarker", func(t *testing.T) {
		assert.True(t, hasStructuralMarker("第一章 引言"))
		assert.True(t, hasStructuralMarker("第十二节 实验设置"))
		assert.True(t, hasStructuralMarker("3. 方法"))
		assert.True(t, hasStructuralMarker("12、其他说明"))
		assert.False(t, hasStructuralMarker("第n章"))
		assert.False(t, hasStructuralMarker("普通正文"))
		assert.False(t, hasStructuralMarker(""))
	})

	t.Run("ShortAfterLong", func(t *testing.T) {
		s := NewSegmenter(DefaultConfig())
		long := strings.Repeat("a", 41)
		assert.True(t, s.isShortAfterLong("short", long))
		assert.False(t, s.isShortAfterLong("short", strings.Repeat("a", 40)))
		assert.False(t, s.isShortAfterLong(strings.Repeat("b", 20), long))
		assert.False(t, s.isShortAfterLong("short", ""))
	})
}

func TestSplitRealWorldText(t *testing.T) {
	s := NewSegmenter(DefaultConfig())

	text := "第一章 文档处理系统概述\n\n" +
		"本系统负责接收用户上传的文档并进行解析。解析完成后，系统会将文本切分为段落。\n" +
		"每个段落会被转换为向量并存入向量数据库，供后续检索使用。\n\n" +
		"42\n\n" +
		"----------------\n\n" +
		"1. 支持PDF格式的文档解析与处理\n" +
		"2. 支持Markdown格式的文档解析\n\n" +
		"以上就是系统的主要功能说明，更多细节请参考后续章节的详细介绍。"

	segments := s.Split(text)

	// 页码和分隔线噪声被过滤，其余段落保留原有顺序
	assert.True(t, len(segments) >= 4)
	for _, seg := range segments {
		assert.NotContains(t, seg.Text, "----")
		assert.NotEqual(t, "42", seg.Text)
	}
	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
	}
	t.Logf("split into %d segments", len(segments))
}
