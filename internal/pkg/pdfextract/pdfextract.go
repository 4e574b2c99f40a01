package pdfextract

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// ExtractText extracts plain text from a PDF document. Returns an empty
// string and nil error if the PDF has no extractable text.
func ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(plainReader); err != nil {
		return "", err
	}
	return out.String(), nil
}
