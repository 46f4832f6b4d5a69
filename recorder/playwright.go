package recorder

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	pw "github.com/playwright-community/playwright-go"
)

// BindingName is the page-global function the capture script reports through.
const BindingName = "bankflowCapture"

// Attach wires the session to a live page: exposes the capture binding,
// registers the instrumentation as an init script for future navigations and
// evaluates it against the current document.
func Attach(page pw.Page, s *Session) error {
	err := page.ExposeFunction(BindingName, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		ev, err := decodeEvent(args[0])
		if err != nil {
			log.Printf("[Recorder] dropping malformed capture event: %v", err)
			return nil
		}
		s.HandleEvent(ev)
		return nil
	})
	// Re-attaching to the same page re-registers the binding; playwright
	// rejects that, but the existing binding keeps working.
	if err != nil && !strings.Contains(err.Error(), "has been already registered") {
		return fmt.Errorf("expose capture binding: %w", err)
	}
	if err := page.AddInitScript(pw.Script{Content: pw.String(captureScript)}); err != nil {
		return fmt.Errorf("register capture init script: %w", err)
	}
	if _, err := page.Evaluate(captureScript); err != nil {
		return fmt.Errorf("inject capture script: %w", err)
	}
	log.Printf("🎬 [Recorder] capture attached for %s", s.TargetURL())
	return nil
}

// Detach tears down the page-side listeners. Safe to call repeatedly and
// after navigation; the binding itself stays registered but the inactive
// session drops anything it still reports.
func Detach(page pw.Page) {
	_, err := page.Evaluate(`() => { if (window.__bankflowCapture) window.__bankflowCapture.detach(); }`)
	if err != nil {
		log.Printf("[Recorder] detach: %v", err)
	}
}

func decodeEvent(raw interface{}) (Event, error) {
	// The binding payload arrives as decoded JSON; round-trip it into the
	// typed event.
	b, err := json.Marshal(raw)
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, err
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("event missing kind")
	}
	return ev, nil
}
