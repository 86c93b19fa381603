package template

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"park-ticketing/internal/models"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"
)

const fontFamily = "goregular"

// TicketPDFGenerator renders a printable A4 ticket with its QR code.
type TicketPDFGenerator struct {
	ParkName string
}

func NewTicketPDFGenerator(parkName string) *TicketPDFGenerator {
	if parkName == "" {
		parkName = "Theme Park"
	}
	return &TicketPDFGenerator{ParkName: parkName}
}

func (g *TicketPDFGenerator) Generate(ticket models.Ticket, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontFamily, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont(fontFamily, "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(40)
	pdf.Cell(nil, strings.ToUpper(g.ParkName)+" ADMISSION TICKET")

	pdf.SetY(80)
	for _, line := range ticketLines(ticket) {
		pdf.SetX(40)
		pdf.Cell(nil, line)
		pdf.Br(20)
	}

	if len(qrCode) > 0 {
		img, err := png.Decode(bytes.NewReader(qrCode))
		if err != nil {
			return nil, fmt.Errorf("failed to read QR image: %w", err)
		}
		if err := pdf.ImageFrom(img, 40, pdf.GetY()+20, &gopdf.Rect{W: 180, H: 180}); err != nil {
			return nil, fmt.Errorf("failed to draw QR code: %w", err)
		}
	}

	pdf.SetX(40)
	pdf.SetY(780)
	pdf.Cell(nil, "Present this code at the gate on your visit date.")

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func ticketLines(ticket models.Ticket) []string {
	lines := []string{
		fmt.Sprintf("Ticket: #%d", ticket.ID),
		"Visit date: " + ticket.VisitDate,
		fmt.Sprintf("Visitors: %d", ticket.Quantity),
		"Payment: " + string(ticket.PaymentMethod),
	}
	for i, v := range ticket.Visitors {
		lines = append(lines, fmt.Sprintf("  %d. age %d, %s pass", i+1, v.Age, v.PassType))
	}
	if !ticket.IssuedAt.IsZero() {
		lines = append(lines, "Issued: "+ticket.IssuedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return lines
}
