package recorder

// captureScript is the instrumentation injected into the live page. It
// attaches capture-phase passive listeners on window so it observes events
// before any site handler can stop propagation, collects raw element facts,
// and reports them through the bankflowCapture page binding. Selection policy
// stays on the Go side; the script only observes.
const captureScript = `(() => {
  if (window.__bankflowCapture) { window.__bankflowCapture.attach(); return; }
  const OVERLAY_IDS = ['bankflow-overlay', 'bankflow-record-bar', 'bankflow-playback-bar'];
  const state = { attached: false };

  function inOverlay(el) {
    if (!el || !el.closest) return false;
    for (const id of OVERLAY_IDS) {
      if (el.closest('#' + id)) return true;
    }
    return false;
  }

  function visibleText(el) {
    return ((el.innerText || el.textContent || '') + '').trim().replace(/\s+/g, ' ');
  }

  function textClass(el, text) {
    if (!text) return '';
    try {
      for (const n of el.querySelectorAll('*')) {
        if (visibleText(n) === text && n.classList && n.classList.length) {
          return n.classList[0];
        }
      }
    } catch (e) {}
    return (el.classList && el.classList[0]) || '';
  }

  function labelFor(el) {
    try {
      if (el.id) {
        const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
        if (l) return visibleText(l);
      }
      const wrap = el.closest('label');
      if (wrap) return visibleText(wrap);
      // Nearest label within a small pixel radius.
      const r = el.getBoundingClientRect();
      let best = '', bestDist = 40;
      for (const l of document.querySelectorAll('label')) {
        const lr = l.getBoundingClientRect();
        const dist = Math.hypot(lr.left - r.left, lr.bottom - r.top);
        if (dist < bestDist) { bestDist = dist; best = visibleText(l); }
      }
      return best;
    } catch (e) { return ''; }
  }

  function ancestorChain(el) {
    const out = [];
    let n = el.parentElement;
    while (n && out.length < 3 && n.tagName !== 'BODY' && n.tagName !== 'HTML') {
      out.push({
        tag: n.tagName.toLowerCase(),
        id: n.id || '',
        classes: Array.from(n.classList || []),
      });
      n = n.parentElement;
    }
    return out;
  }

  function describe(el, evt) {
    const rect = el.getBoundingClientRect();
    const attr = (k) => (el.getAttribute && el.getAttribute(k)) || '';
    const name = attr('name');
    let nameMatches = 0;
    if (name) {
      try { nameMatches = document.querySelectorAll('[name="' + CSS.escape(name) + '"]').length; }
      catch (e) { nameMatches = 1; }
    }
    const text = [...visibleText(el)].slice(0, 200).join('');
    return {
      tag: (el.tagName || '').toLowerCase(),
      type: attr('type'),
      role: attr('role'),
      id: el.id || '',
      name: name,
      name_matches: nameMatches,
      placeholder: attr('placeholder'),
      aria_label: attr('aria-label'),
      label_text: labelFor(el),
      text: text,
      classes: Array.from(el.classList || []),
      text_class: textClass(el, text),
      ancestors: ancestorChain(el),
      point_x: evt && typeof evt.clientX === 'number' && evt.clientX ? evt.clientX : rect.left + rect.width / 2,
      point_y: evt && typeof evt.clientY === 'number' && evt.clientY ? evt.clientY : rect.top + rect.height / 2,
      center_x: rect.left + rect.width / 2,
      center_y: rect.top + rect.height / 2,
      viewport_width: window.innerWidth,
      viewport_height: window.innerHeight,
      scroll_x: window.scrollX,
      scroll_y: window.scrollY,
      in_overlay: inOverlay(el),
    };
  }

  function send(kind, el, evt, value) {
    if (!window.bankflowCapture) return;
    try {
      window.bankflowCapture({
        kind: kind,
        element: describe(el, evt),
        value: value == null ? '' : String(value),
        timestamp_ms: Date.now(),
      });
    } catch (e) {}
  }

  function onClick(e) {
    const t = e.target;
    if (!t || inOverlay(t)) return;
    let el = t;
    if (t.closest) {
      el = t.closest('button, a, [role="button"], [role="link"], input, select, textarea') || t;
    }
    send('click', el, e, '');
  }

  function onInput(e) {
    const t = e.target;
    if (!t || inOverlay(t) || !('value' in t)) return;
    send('input', t, e, t.value);
  }

  function onCommit(e) {
    const t = e.target;
    if (!t || inOverlay(t) || !('value' in t)) return;
    send('change', t, e, t.value);
  }

  window.__bankflowCapture = {
    attach() {
      if (state.attached) return;
      state.attached = true;
      window.addEventListener('click', onClick, { capture: true, passive: true });
      window.addEventListener('input', onInput, { capture: true, passive: true });
      window.addEventListener('change', onCommit, { capture: true, passive: true });
      window.addEventListener('blur', onCommit, { capture: true, passive: true });
    },
    detach() {
      if (!state.attached) return;
      state.attached = false;
      window.removeEventListener('click', onClick, { capture: true });
      window.removeEventListener('input', onInput, { capture: true });
      window.removeEventListener('change', onCommit, { capture: true });
      window.removeEventListener('blur', onCommit, { capture: true });
    },
  };
  window.__bankflowCapture.attach();
})();`
