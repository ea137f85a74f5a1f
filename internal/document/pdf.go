package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF文档解析器
// 优先读取PDF内置的文本对象，失败时回退到pdfcpu的按页抽取
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (string, error) {
	text, err := extractPlainText(filePath)
	if err == nil && text != "" {
		return text, nil
	}

	// 部分PDF的文本对象无法直接读取，改用pdfcpu按页抽取
	text, fallbackErr := extractWithPdfcpu(filePath)
	if fallbackErr != nil {
		if err != nil {
			return "", fmt.Errorf("failed to extract text from PDF: %v", err)
		}
		return "", fmt.Errorf("failed to extract text from PDF: %v", fallbackErr)
	}
	return text, nil
}

// ParseReader 从Reader解析PDF内容
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF content: %v", err)
	}

	rdr, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		if text, textErr := readPlainText(rdr); textErr == nil && text != "" {
			return text, nil
		}
	}

	// 回退路径需要文件路径，先落盘到临时文件
	tmpFile, err := os.CreateTemp("", "textqa-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	return p.Parse(tmpFile.Name())
}

// PageCount 返回PDF的总页数
func (p *PDFParser) PageCount(filePath string) (int, error) {
	f, rdr, err := ledongthuc.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %v", err)
	}
	defer f.Close()

	return rdr.NumPage(), nil
}

// extractPlainText 读取PDF中的全部文本对象
func extractPlainText(filePath string) (string, error) {
	f, rdr, err := ledongthuc.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %v", err)
	}
	defer f.Close()

	return readPlainText(rdr)
}

func readPlainText(rdr *ledongthuc.Reader) (string, error) {
	body, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %v", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("failed to copy PDF text: %v", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// extractWithPdfcpu 使用pdfcpu按页抽取文本内容
// 每页内容写入独立的txt文件，按页码顺序拼接
func extractWithPdfcpu(filePath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %v", err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted text dir: %v", err)
	}

	// 按页码排序，文件名形如page_10.txt，字典序会把第10页排到第2页前面
	sort.Slice(files, func(i, j int) bool {
		pi, pj := pageNumber(files[i].Name()), pageNumber(files[j].Name())
		if pi != pj {
			return pi < pj
		}
		return files[i].Name() < files[j].Name()
	})

	var allText strings.Builder
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, f.Name()))
		if err != nil {
			continue
		}
		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.Write(data)
	}

	result := strings.TrimSpace(allText.String())
	if result == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return result, nil
}

// pageNumber 从抽取文件名末尾解析页码，无法解析时返回-1
func pageNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	if i == len(base) {
		return -1
	}
	n, err := strconv.Atoi(base[i:])
	if err != nil {
		return -1
	}
	return n
}
