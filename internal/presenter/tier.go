package presenter

import (
	"github.com/gdamore/tcell/v2"

	"github.com/polyinsider/alertfeed/internal/store"
)

// Tier is the visual treatment of a severity.
type Tier struct {
	Label string
	Icon  string
	Color tcell.Color
}

// TierFor maps every severity, including unrecognized ones, to a tier.
func TierFor(s store.Severity) Tier {
	switch s {
	case store.SeverityCritical:
		return Tier{Label: "CRITICAL", Icon: "🔴", Color: tcell.ColorRed}
	case store.SeverityHigh:
		return Tier{Label: "HIGH", Icon: "🟠", Color: tcell.ColorOrange}
	case store.SeverityMedium:
		return Tier{Label: "MEDIUM", Icon: "🟡", Color: tcell.ColorYellow}
	case store.SeverityLow:
		return Tier{Label: "LOW", Icon: "🔵", Color: tcell.ColorBlue}
	default:
		return Tier{Label: "INFO", Icon: "⚪", Color: tcell.ColorWhite}
	}
}

// TypeIcon returns the icon for an alert category.
func TypeIcon(t store.AlertType) string {
	switch t {
	case store.TypeInsiderMove:
		return "🕵"
	case store.TypeWhaleTrade:
		return "🐋"
	case store.TypeLiquidityVacuum:
		return "🕳"
	case store.TypeFatFinger:
		return "☝"
	case store.TypeVolumeAcceleration:
		return "📈"
	default:
		return "❓"
	}
}
