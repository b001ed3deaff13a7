package extract

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// MaxTextLength caps the characters of extracted text sent to the model.
const MaxTextLength = 15000

type format struct {
	empty   string
	failure string
	read    func([]byte) (string, error)
}

var formats = map[string]format{
	".pdf":  {"PDF is empty or has no extractable text", "Error extracting text from PDF", pdfText},
	".docx": {"Word document is empty", "Error extracting text from Word document", docxText},
	".xlsx": {"Excel file is empty", "Error extracting text from Excel file", xlsxText},
	".txt":  {"File is empty", "Error reading text file", plainText},
	".csv":  {"File is empty", "Error reading text file", plainText},
	".md":   {"File is empty", "Error reading text file", plainText},
	".json": {"File is empty", "Error reading text file", plainText},
}

// Text returns the readable text of a document, a notice for formats that
// cannot be read, or a fixed error message. It never fails.
func Text(name string, data []byte) string {
	f, ok := formats[extOf(name)]
	if !ok {
		return Unsupported(name)
	}
	text, err := f.read(data)
	if err != nil {
		return f.failure
	}
	text = Truncate(strings.TrimSpace(text), MaxTextLength)
	if text == "" {
		return f.empty
	}
	return text
}

// Unsupported is the notice for documents whose format cannot be read.
func Unsupported(name string) string {
	switch extOf(name) {
	case ".doc":
		return fmt.Sprintf("Attached file: %s\n(Legacy .doc format is not supported. Please convert it to .docx)", name)
	case ".xls":
		return fmt.Sprintf("Attached file: %s\n(Legacy .xls format is not supported. Please convert it to .xlsx)", name)
	}
	return fmt.Sprintf("Attached file: %s\n(Format not supported for automatic reading)", name)
}

// Truncate keeps at most max characters of s.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func plainText(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), "�"), nil
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		b.WriteString("--- Sheet: " + sheet + " ---\n")
		w := csv.NewWriter(&b)
		if err := w.WriteAll(rows); err != nil {
			return "", err
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx: word/document.xml missing")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func extOf(name string) string { return strings.ToLower(filepath.Ext(name)) }
