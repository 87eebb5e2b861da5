package ui

import (
	"fmt"
	"io"

	"github.com/pkg/browser"
)

func init() {
	// The browser command must not write over the TUI
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// Opener navigates to an alert's link.
type Opener interface {
	Open(url string) error
}

// BrowserOpener opens links with the platform's default browser.
type BrowserOpener struct{}

// Open hands url to the default browser.
func (BrowserOpener) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}
