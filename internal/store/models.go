// Package store provides the alert model and the bounded in-memory alert store.
package store

import "strings"

// AlertType is the anomaly category reported by the alert source.
// Values outside the known set are kept verbatim and classified as other.
type AlertType string

// Known alert categories
const (
	TypeInsiderMove        AlertType = "insider_move"
	TypeWhaleTrade         AlertType = "whale_trade"
	TypeLiquidityVacuum    AlertType = "liquidity_vacuum"
	TypeFatFinger          AlertType = "fat_finger"
	TypeVolumeAcceleration AlertType = "volume_acceleration"
	TypeOther              AlertType = "other"
)

// Known reports whether t is one of the recognized categories.
func (t AlertType) Known() bool {
	switch t {
	case TypeInsiderMove, TypeWhaleTrade, TypeLiquidityVacuum, TypeFatFinger, TypeVolumeAcceleration:
		return true
	}
	return false
}

// Label returns a short human readable name for the category.
func (t AlertType) Label() string {
	switch t {
	case TypeInsiderMove:
		return "Insider Move"
	case TypeWhaleTrade:
		return "Whale Trade"
	case TypeLiquidityVacuum:
		return "Liquidity Vacuum"
	case TypeFatFinger:
		return "Fat Finger"
	case TypeVolumeAcceleration:
		return "Volume Acceleration"
	case TypeOther, "":
		return "Alert"
	}
	// Unrecognized: title-case the raw value
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Severity is the ordered alert severity: critical > high > medium > low.
type Severity string

// Severities, highest first
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// Rank orders severities. Unknown ranks below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a raw severity string to a Severity.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return s
	}
	return SeverityUnknown
}

// Alert is a single market-anomaly notification. It is immutable once received.
type Alert struct {
	// Timestamp is the source-provided time string. It doubles as the
	// alert's identity within a session and is never validated on ingest.
	Timestamp string `json:"timestamp"`

	// Type is the anomaly category
	Type AlertType `json:"type"`

	// Severity drives visual emphasis
	Severity Severity `json:"severity"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// PolymarketURL is an optional deep link to the originating market
	PolymarketURL string `json:"polymarketUrl,omitempty"`
}
