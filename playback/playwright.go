package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"bankflow/recipes"
	"bankflow/resolver"
)

// PlaywrightDriver executes probes against a live playwright page. Each probe
// is a single page-side evaluation that resolves the target and, when found,
// performs the action in the same call, so a mid-action navigation cannot
// split resolution from execution.
type PlaywrightDriver struct {
	page pw.Page
}

func NewPlaywrightDriver(page pw.Page) *PlaywrightDriver {
	return &PlaywrightDriver{page: page}
}

func (d *PlaywrightDriver) URL(ctx context.Context) (string, error) {
	return d.page.URL(), nil
}

func (d *PlaywrightDriver) Content(ctx context.Context) (string, error) {
	return d.page.Content()
}

type performPayload struct {
	Probe resolver.Probe `json:"probe"`
	Step  stepPayload    `json:"step"`
}

type stepPayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (d *PlaywrightDriver) TryProbe(ctx context.Context, probe resolver.Probe, step recipes.InteractionStep) (bool, error) {
	payload := performPayload{
		Probe: probe,
		Step:  stepPayload{Kind: string(step.Kind), Value: step.Value},
	}
	// Round-trip through JSON so the evaluate argument is plain data.
	b, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	var arg map[string]interface{}
	if err := json.Unmarshal(b, &arg); err != nil {
		return false, err
	}

	res, err := d.page.Evaluate(performScript, arg)
	if err != nil {
		return false, fmt.Errorf("evaluate probe %s: %w", probe.Kind, err)
	}
	m, ok := res.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("probe %s: unexpected result %T", probe.Kind, res)
	}
	okv, _ := m["ok"].(bool)
	return okv, nil
}

// WaitSettled waits for the load event, then for document readiness, then
// returns. All waits are bounded and non-fatal; a page that never reaches a
// clean idle state must not hang playback.
func (d *PlaywrightDriver) WaitSettled(ctx context.Context, timeout time.Duration) {
	_ = d.page.WaitForLoadState(pw.PageWaitForLoadStateOptions{
		State:   pw.LoadStateLoad,
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		state, err := d.page.Evaluate(`() => document.readyState`)
		if err == nil {
			if s, ok := state.(string); ok && s == "complete" {
				return
			}
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

// performScript resolves one probe and performs the step action on the
// resolved element. Input values go through the platform value setter so
// front-end frameworks observing the value property see the update.
const performScript = `(payload) => {
  const probe = payload.probe;
  const step = payload.step;

  function climb(el) {
    if (!el || !el.closest) return el;
    if (step.kind === 'click') {
      return el.closest('button, a, [role="button"], [role="link"]') || el;
    }
    return el.closest('input, textarea, select') || el;
  }

  function byPoint(x, y) {
    if (x == null || y == null) return null;
    return climb(document.elementFromPoint(x, y));
  }

  function visibleText(el) {
    return ((el.innerText || el.textContent || '') + '').trim().replace(/\s+/g, ' ');
  }

  function byDescriptor(d) {
    if (!d) return null;
    if (d.selector) {
      try { return document.querySelector(d.selector); } catch (e) { return null; }
    }
    if (d.strategy === 'semantic' && d.label) {
      for (const l of document.querySelectorAll('label')) {
        if (visibleText(l) !== d.label) continue;
        const forId = l.getAttribute('for');
        if (forId) {
          const c = document.getElementById(forId);
          if (c) return c;
        }
        const nested = l.querySelector('input, textarea, select');
        if (nested) return nested;
      }
      return null;
    }
    if (d.strategy === 'text' && d.text) {
      const sel = d.tag || 'button, a, [role="button"], [role="link"]';
      let fallback = null;
      for (const el of document.querySelectorAll(sel)) {
        // Spread slices code points, matching the stored text's rune cap.
        if ([...visibleText(el)].slice(0, 100).join('') !== d.text) continue;
        if (d.class_hint && el.closest('.' + CSS.escape(d.class_hint))) return el;
        if (!fallback) fallback = el;
      }
      return fallback;
    }
    return null;
  }

  let el = null;
  switch (probe.kind) {
    case 'point_exact':
    case 'point_center':
      el = byPoint(probe.x, probe.y);
      break;
    case 'point_scrolled': {
      const dx = (probe.scroll_x || 0) - window.scrollX;
      const dy = (probe.scroll_y || 0) - window.scrollY;
      el = byPoint(probe.x + dx, probe.y + dy);
      break;
    }
    case 'descriptor':
      el = byDescriptor(probe.descriptor);
      break;
  }
  if (!el) return { ok: false, reason: 'not found' };

  try { el.scrollIntoView({ block: 'center', behavior: 'instant' }); } catch (e) {}
  try {
    const prev = el.style.outline;
    el.style.outline = '2px solid #f5a623';
    setTimeout(() => { el.style.outline = prev; }, 400);
  } catch (e) {}

  function setNativeValue(target, value) {
    const proto = target instanceof HTMLTextAreaElement
      ? HTMLTextAreaElement.prototype
      : HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) { desc.set.call(target, value); } else { target.value = value; }
  }

  try {
    switch (step.kind) {
      case 'click':
        el.click();
        break;
      case 'input':
        el.focus();
        setNativeValue(el, '');
        el.dispatchEvent(new Event('input', { bubbles: true }));
        setNativeValue(el, step.value);
        el.dispatchEvent(new Event('input', { bubbles: true }));
        el.dispatchEvent(new Event('change', { bubbles: true }));
        el.blur();
        break;
      case 'select': {
        let matched = false;
        for (const opt of el.options || []) {
          if (opt.value === step.value || visibleText(opt) === step.value) {
            el.value = opt.value;
            matched = true;
            break;
          }
        }
        if (!matched) el.value = step.value;
        el.dispatchEvent(new Event('change', { bubbles: true }));
        break;
      }
      default:
        return { ok: false, reason: 'unknown step kind ' + step.kind };
    }
  } catch (e) {
    return { ok: false, reason: String(e) };
  }
  return { ok: true };
}`
