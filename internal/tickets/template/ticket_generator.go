package template

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"smec-portal/internal/models"
	qr "smec-portal/internal/tickets/qr_generator"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	DefaultTitle = "SMEC '26 OFFICIAL PASS"
	DateLayout   = "Jan 2, 2006"

	fontFamily = "pass"
	marginLeft = 57.0
	lineHeight = 28.0

	infoFontSize = 14.0
	minTeamFont  = 8.0
	memberIndent = 14.0
	columnGap    = 14.0
	maxInfoLines = 2 // wrapped lines per info entry

	qrSize = 140.0
	qrTop  = 130.0
	qrGap  = 12.0
)

// Artifact is a rendered pass.
type Artifact struct {
	Name string
	Data []byte
}

func (a *Artifact) FileName() string {
	return a.Name + ".pdf"
}

// Save writes the artifact into dir and returns its path.
func (a *Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, a.FileName())
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write pass: %w", err)
	}
	return path, nil
}

type TicketPDFGenerator struct {
	Title    string
	FontPath string // optional TTF, Go Regular otherwise
	QR       *qr.QRGenerator
}

func NewTicketPDFGenerator(title, fontPath, qrSecret string) *TicketPDFGenerator {
	if title == "" {
		title = DefaultTitle
	}
	g := &TicketPDFGenerator{Title: title, FontPath: fontPath}
	if qrSecret != "" {
		g.QR = qr.NewQRGenerator(qrSecret)
	}
	return g
}

// PassLines are the text lines of a pass, title first.
func PassLines(ticket models.Ticket, title string) []string {
	lines := []string{
		title,
		"Event: " + ticket.Event.Title,
		"Ticket ID: " + ticket.SerialNumber,
		"Date: " + ticket.Event.Date.Format(DateLayout),
		"Location: " + ticket.Event.Location,
	}
	if len(ticket.TeamMembers) > 0 {
		lines = append(lines, "Team Members:")
		for i, m := range ticket.TeamMembers {
			lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, m.FullName, m.UniversityName))
		}
	}
	return lines
}

// Render produces a single page A4 pass. Tickets of deleted events are
// rejected before any document is built.
func (g *TicketPDFGenerator) Render(ticket models.Ticket) (artifact *Artifact, err error) {
	if ticket.Event == nil {
		return nil, models.ErrMissingEvent
	}

	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = fmt.Errorf("pdf generation panicked: %v", r)
		}
	}()

	data, err := g.generate(ticket)
	if err != nil {
		return nil, err
	}
	return &Artifact{Name: "Ticket-" + ticket.SerialNumber, Data: data}, nil
}

func (g *TicketPDFGenerator) generate(ticket models.Ticket) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := g.loadFont(pdf); err != nil {
		return nil, err
	}

	lines := PassLines(ticket, g.Title)

	// Header
	if err := pdf.SetFont(fontFamily, "", 22); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	if err := addHeader(pdf, lines[0]); err != nil {
		return nil, err
	}

	// Ticket Info, kept clear of the QR code
	if err := pdf.SetFont(fontFamily, "", infoFontSize); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	infoWidth := gopdf.PageSizeA4.W - 2*marginLeft
	if g.QR != nil {
		infoWidth = qrLeft() - qrGap - marginLeft
	}
	pdf.SetY(142)
	if err := addTicketInfo(pdf, lines[1:5], infoWidth); err != nil {
		return nil, err
	}

	if len(lines) > 5 {
		pdf.SetY(pdf.GetY() + lineHeight)
		if err := addTeam(pdf, lines[5], lines[6:]); err != nil {
			return nil, err
		}
	}

	// QR Code
	if g.QR != nil {
		qrCode, err := g.QR.GenerateEncryptedQR(ticket)
		if err != nil {
			return nil, err
		}
		if err := addQRCode(pdf, qrCode); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *TicketPDFGenerator) loadFont(pdf *gopdf.GoPdf) error {
	var err error
	if g.FontPath != "" {
		err = pdf.AddTTFFont(fontFamily, g.FontPath)
	} else {
		err = pdf.AddTTFFontData(fontFamily, goregular.TTF)
	}
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	return nil
}

func addHeader(pdf *gopdf.GoPdf, title string) error {
	width, err := pdf.MeasureTextWidth(title)
	if err != nil {
		return fmt.Errorf("failed to measure title: %w", err)
	}
	pdf.SetXY((gopdf.PageSizeA4.W-width)/2, 57)
	return pdf.Cell(nil, title)
}

func addTicketInfo(pdf *gopdf.GoPdf, lines []string, width float64) error {
	for _, line := range lines {
		wrapped, err := wrapText(pdf, line, width, maxInfoLines)
		if err != nil {
			return err
		}
		for _, part := range wrapped {
			pdf.SetX(marginLeft)
			if err := pdf.Cell(nil, part); err != nil {
				return fmt.Errorf("failed to write ticket info: %w", err)
			}
			pdf.Br(lineHeight)
		}
	}
	return nil
}

// addTeam lays the roster out below the heading without leaving the page.
func addTeam(pdf *gopdf.GoPdf, heading string, members []string) error {
	pdf.SetTextColor(255, 0, 255)
	pdf.SetX(marginLeft)
	if err := pdf.Cell(nil, heading); err != nil {
		return fmt.Errorf("failed to write team heading: %w", err)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Br(lineHeight)

	top := pdf.GetY()
	layout := layoutRoster(len(members), gopdf.PageSizeA4.H-marginLeft-top)
	if err := pdf.SetFont(fontFamily, "", layout.FontSize); err != nil {
		return fmt.Errorf("failed to set font: %w", err)
	}

	colWidth := layout.columnWidth()
	cells := append([]string(nil), members[:layout.Shown]...)
	if layout.Shown < len(members) {
		cells = append(cells, fmt.Sprintf("... and %d more", len(members)-layout.Shown))
	}
	for i, m := range cells {
		col, row := i/layout.Rows, i%layout.Rows
		text, err := clipText(pdf, m, colWidth)
		if err != nil {
			return err
		}
		pdf.SetXY(marginLeft+memberIndent+float64(col)*(colWidth+columnGap), top+float64(row)*layout.Step)
		if err := pdf.Cell(nil, text); err != nil {
			return fmt.Errorf("failed to write team member: %w", err)
		}
	}
	return nil
}

type rosterLayout struct {
	FontSize float64
	Step     float64 // vertical distance between rows
	Columns  int
	Rows     int
	Shown    int // members drawn; the rest share one summary cell
}

func (l rosterLayout) columnWidth() float64 {
	usable := gopdf.PageSizeA4.W - 2*marginLeft - memberIndent - columnGap*float64(l.Columns-1)
	return usable / float64(l.Columns)
}

// layoutRoster fits count rows into height. The font shrinks down to
// minTeamFont, then the list splits into two columns, then the tail is cut.
func layoutRoster(count int, height float64) rosterLayout {
	if count == 0 {
		return rosterLayout{FontSize: infoFontSize, Step: lineHeight, Columns: 1, Rows: 1}
	}
	for _, cols := range []int{1, 2} {
		rows := (count + cols - 1) / cols
		step := height / float64(rows)
		if step >= lineHeight {
			return rosterLayout{FontSize: infoFontSize, Step: lineHeight, Columns: cols, Rows: rows, Shown: count}
		}
		if size := infoFontSize * step / lineHeight; size >= minTeamFont {
			return rosterLayout{FontSize: size, Step: step, Columns: cols, Rows: rows, Shown: count}
		}
	}

	step := lineHeight * minTeamFont / infoFontSize
	rows := int(height / step)
	if rows < 1 {
		rows = 1
	}
	return rosterLayout{FontSize: minTeamFont, Step: step, Columns: 2, Rows: rows, Shown: 2*rows - 1}
}

// wrapText breaks text into at most maxLines lines no wider than width. The
// last line is clipped when the text does not fit.
func wrapText(pdf *gopdf.GoPdf, text string, width float64, maxLines int) ([]string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}, nil
	}

	var lines []string
	current := words[0]
	for i := 1; i < len(words); i++ {
		candidate := current + " " + words[i]
		w, err := pdf.MeasureTextWidth(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to measure text: %w", err)
		}
		if w <= width {
			current = candidate
			continue
		}
		if len(lines) == maxLines-1 {
			current = strings.Join(append([]string{current}, words[i:]...), " ")
			break
		}
		lines = append(lines, current)
		current = words[i]
	}
	lines = append(lines, current)

	for i, line := range lines {
		clipped, err := clipText(pdf, line, width)
		if err != nil {
			return nil, err
		}
		lines[i] = clipped
	}
	return lines, nil
}

// clipText shortens text behind a trailing "..." until it fits width.
func clipText(pdf *gopdf.GoPdf, text string, width float64) (string, error) {
	w, err := pdf.MeasureTextWidth(text)
	if err != nil {
		return "", fmt.Errorf("failed to measure text: %w", err)
	}
	if w <= width {
		return text, nil
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := strings.TrimRight(string(runes[:n]), " ") + "..."
		if w, err = pdf.MeasureTextWidth(candidate); err != nil {
			return "", fmt.Errorf("failed to measure text: %w", err)
		}
		if w <= width {
			return candidate, nil
		}
	}
	return "...", nil
}

func qrLeft() float64 {
	return gopdf.PageSizeA4.W - marginLeft - qrSize
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) error {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}
	rect := &gopdf.Rect{W: qrSize, H: qrSize}
	if err := pdf.ImageFrom(img, qrLeft(), qrTop, rect); err != nil {
		return fmt.Errorf("failed to draw QR code: %w", err)
	}
	return nil
}
