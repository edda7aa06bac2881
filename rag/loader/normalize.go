package loader

import (
	"regexp"
	"strings"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	multiSpaces    = regexp.MustCompile(` {2,}`)
	sectionHeading = regexp.MustCompile(`(Chapter|CHAPTER|Section|SECTION) [0-9]+`)
)

// Normalize 规整抽取文本，保留自然段落边界供分块使用：
// 统一行尾，压缩连续空行为段落分隔，把非句界的单个换行并入
// 上一行，压缩多余空格，并在章节标题前补段落分隔。
func Normalize(text string) string {
	// 统一行尾。
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// 三个以上连续换行压缩为一个段落分隔。
	text = excessNewlines.ReplaceAllString(text, "\n\n")

	text = joinSoftLineBreaks(text)

	text = multiSpaces.ReplaceAllString(text, " ")

	text = breakBeforeHeadings(text)

	return strings.TrimSpace(text)
}

// joinSoftLineBreaks 把句中换行替换为空格：前一字符不是句末标点、
// 后一字符不是大写字母或换行时，这个换行只是排版折行。
// Go 正则不支持环视，按字节扫描实现同一规则。
func joinSoftLineBreaks(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\n' {
			sb.WriteByte(c)
			continue
		}

		sentenceEnd := i > 0 && (text[i-1] == '.' || text[i-1] == '!' || text[i-1] == '?')
		hardBreak := i+1 < len(text) && (text[i+1] == '\n' || (text[i+1] >= 'A' && text[i+1] <= 'Z'))

		if sentenceEnd || hardBreak {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// breakBeforeHeadings 在章节标题前插入段落分隔，文首除外。
func breakBeforeHeadings(text string) string {
	locs := sectionHeading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text) + 2*len(locs))

	prev := 0
	for _, loc := range locs {
		if loc[0] == 0 {
			continue
		}
		sb.WriteString(text[prev:loc[0]])
		sb.WriteString("\n\n")
		prev = loc[0]
	}
	sb.WriteString(text[prev:])
	return sb.String()
}
