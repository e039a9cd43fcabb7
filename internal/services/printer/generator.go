package printer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

const (
	DefaultCols    = 3
	DefaultRows    = 7
	DefaultPNGSize = 256
	MaxPNGSize     = 1024
	// MaxLabels bounds a single sheet request
	MaxLabels = 500

	captionLimit = 40
)

var ErrNoCodes = errors.New("no codes to print")

// LabelConfig holds configuration for PDF generation
type LabelConfig struct {
	Codes      []string `json:"codes"`
	Cols       int      `json:"cols"`
	Rows       int      `json:"rows"`
	MarginTop  float64  `json:"marginTop"`
	MarginLeft float64  `json:"marginLeft"`
	GapX       float64  `json:"gapX"`
	GapY       float64  `json:"gapY"`
	// Caption printed top right of every label, e.g. the product name
	Caption string `json:"caption"`
}

// Normalize fills layout defaults
func (cfg *LabelConfig) Normalize() error {
	if len(cfg.Codes) == 0 {
		return ErrNoCodes
	}
	if len(cfg.Codes) > MaxLabels {
		return fmt.Errorf("too many codes: %d > %d", len(cfg.Codes), MaxLabels)
	}
	if cfg.Cols <= 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows <= 0 {
		cfg.Rows = DefaultRows
	}
	return nil
}

// GeneratePNG renders a single code as a PNG
func GeneratePNG(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	if size > MaxPNGSize {
		size = MaxPNGSize
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

// GenerateLabelsPDF creates an A4 sheet of QR labels, one per code
func GenerateLabelsPDF(cfg LabelConfig) ([]byte, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	// A4 dimensions
	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY

	// Symmetric margins
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)

	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows

	for i, code := range cfg.Codes {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		// Top-left of label
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(code, qrcode.Low, DefaultPNGSize)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", code, err)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{
			ImageType: "PNG",
			ReadDpi:   true,
		}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR centered, 70% of label height
		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}

		qrX := x + (labelW-qrSize)/2
		qrY := y + (labelH-qrSize)/2 - 2 // room for the caption

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, truncate(code, captionLimit), "", 0, "C", false, 0, "")

		if cfg.Caption != "" {
			pdf.SetXY(x, y+1)
			pdf.SetFontSize(6)
			pdf.CellFormat(labelW, 3, truncate(cfg.Caption, captionLimit), "", 0, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
