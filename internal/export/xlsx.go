// Package export writes the user's booking history to an Excel file.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"courtflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Reservas"

type Exporter struct {
	path   string
	logger *zerolog.Logger
}

func NewExporter(path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{path: path, logger: logger}
}

// ExportBookings writes the bookings to an .xlsx under the export
// directory and returns the file path.
func (e *Exporter) ExportBookings(bookings []*models.Booking) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Cancha", "Fecha", "Inicio", "Fin", "Duración (min)",
		"Precio", "Estado", "Pagada",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, booking := range bookings {
		row := i + 2
		paid := "No"
		if !booking.PaidAt.IsZero() {
			paid = "Sí"
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), booking.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), booking.CourtID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), booking.Start.Format("02/01/2006"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), booking.Start.Format("15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), booking.End.Format("15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), booking.DurationMin)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), models.FormatAmount(booking.Price, booking.Currency))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), statusLabel(booking.Status))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), paid)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "G", 14)
	_ = f.SetColWidth(sheetName, "H", "I", 12)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("reservas_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("bookings exported")
	return filePath, nil
}

func statusLabel(status string) string {
	switch status {
	case models.BookingConfirmed:
		return "Confirmada"
	case models.BookingCancelled:
		return "Cancelada"
	case models.BookingCompleted:
		return "Completada"
	default:
		return status
	}
}
