package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes text with a locally installed Tesseract via
// gosseract. Each call uses a fresh client: gosseract clients are not
// safe for concurrent use.
type TesseractEngine struct {
	languages []string
}

// NewTesseractEngine creates an engine with the given language hints
// (e.g. "eng"). No hints means Tesseract's default.
func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{languages: languages}
}

// RecognizeLines runs line-level recognition over a single encoded
// image. All resulting blocks carry page number 1; multi-page formats
// are the territory of the remote OCR service, not this engine.
func (e *TesseractEngine) RecognizeLines(ctx context.Context, image []byte) ([]LineBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set tesseract languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract line recognition: %w", err)
	}

	blocks := make([]LineBlock, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		blocks = append(blocks, LineBlock{
			BlockType:  BlockTypeLine,
			PageNumber: 1,
			Text:       text,
			Confidence: box.Confidence,
		})
	}
	return blocks, nil
}
