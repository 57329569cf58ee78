package evaluator

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Sheet is one applied stylesheet.
type Sheet struct {
	Path string
	Text string
}

// Stylesheet is the document's style: sheets in the order they were applied.
// Later sheets win in the cascade, so the order is significant.
type Stylesheet struct {
	m      sync.Mutex
	sheets []Sheet
}

// NewStylesheet returns an empty document style.
func NewStylesheet() *Stylesheet {
	return &Stylesheet{}
}

// Apply appends src to the document.
func (s *Stylesheet) Apply(ctx context.Context, path string, src []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !utf8.Valid(src) {
		return errors.Errorf("stylesheet %v is not valid UTF-8", path)
	}

	s.m.Lock()
	defer s.m.Unlock()
	s.sheets = append(s.sheets, Sheet{Path: path, Text: string(src)})

	log.Debugf("applied stylesheet %v", path)
	return nil
}

// Sheets returns the applied sheets in order.
func (s *Stylesheet) Sheets() []Sheet {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]Sheet(nil), s.sheets...)
}

// String renders the whole document style.
func (s *Stylesheet) String() string {
	s.m.Lock()
	defer s.m.Unlock()

	var sb strings.Builder
	for _, sheet := range s.sheets {
		sb.WriteString("/* ")
		sb.WriteString(sheet.Path)
		sb.WriteString(" */\n")
		sb.WriteString(sheet.Text)
		if !strings.HasSuffix(sheet.Text, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
