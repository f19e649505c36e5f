package annotate

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/JakeFAU/dubbadge/internal/dom"
	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Hints are side signals gathered during resolution.
type Hints struct {
	Popup          bool
	CompetingBadge bool
}

// Plan is every visual decision for one overlay.
type Plan struct {
	ID         string
	Tooltip    string
	ColorClass string
	Offsets    Offsets
	Popup      bool
}

// NewPlan derives the overlay decisions from the snapshot and hints.
func NewPlan(id string, snap settings.Snapshot, hints Hints) Plan {
	return Plan{
		ID:         id,
		Tooltip:    Tooltip(id, snap.Debug),
		ColorClass: ColorClass(snap.Color),
		Offsets:    OffsetsFor(snap.Position, hints.CompetingBadge),
		Popup:      hints.Popup,
	}
}

// The hover handler renders its tooltip on document.body.
var overlayTemplate = template.Must(template.New("overlay").Parse(`<div class="group relative">` +
	`<span aria-label="{{.Tooltip}}" data-dub-badge-id="{{.ID}}"` +
	` onmouseenter="(function(el, text) {` +
	`var id = 'seanime-dub-tooltip-temp';` +
	`var ex = document.getElementById(id); if (ex) { ex.remove(); }` +
	`var tt = document.createElement('div'); tt.id = id; tt.innerText = text;` +
	`tt.style.cssText = 'position: absolute; z-index: 99999; background-color: #18181b; color: #FFFFFF; padding: 0.375rem 0.75rem; border-radius: 0.75rem; font-size: 0.875rem; line-height: 1.25rem; border: 1px solid #27272a; pointer-events: none; white-space: nowrap; opacity: 0; transform: translateX(-50%) scale(0.95) translateY(4px); transition: opacity 150ms ease-out, transform 150ms ease-out;';` +
	`var rect = el.getBoundingClientRect();` +
	`tt.style.top = (rect.top + window.scrollY - 34) + 'px';` +
	`tt.style.left = (rect.left + window.scrollX + rect.width * 0.5) + 'px';` +
	`document.body.appendChild(tt);` +
	`setTimeout(function() { tt.style.opacity = '1'; tt.style.transform = 'translateX(-50%) scale(1) translateY(0)'; }, 10);` +
	`})(this, {{.Tooltip}})"` +
	` onmouseleave="var tt = document.getElementById('seanime-dub-tooltip-temp'); if (tt) { tt.remove(); }"` +
	` class="UI-Badge__root inline-flex flex-none w-fit overflow-hidden justify-center items-center gap-2 text-white {{.ColorClass}} h-7 px-2.5 text-md font-semibold tracking-wide rounded-full shadow-md cursor-pointer transition-colors group">` +
	`<svg stroke="currentColor" fill="currentColor" stroke-width="0" viewBox="0 0 24 24" height="1.2em" width="1.2em" xmlns="http://www.w3.org/2000/svg">` +
	`<path d="M12 14c1.66 0 3-1.34 3-3V5c0-1.66-1.34-3-3-3S9 3.34 9 5v6c0 1.66 1.34 3 3 3z"></path>` +
	`<path d="M17 11c0 2.76-2.24 5-5 5s-5-2.24-5-5H5c0 3.53 2.61 6.43 6 6.92V21h2v-3.08c3.39-.49 6-3.39 6-6.92h-2z"></path>` +
	`</svg></span></div>`))

// Render builds the overlay wrapper fragment.
func Render(p Plan) (dom.Fragment, error) {
	var b bytes.Buffer
	if err := overlayTemplate.Execute(&b, p); err != nil {
		return dom.Fragment{}, fmt.Errorf("render overlay: %w", err)
	}
	return dom.Fragment{
		Tag:       "div",
		ClassName: WrapperClasses(p.Popup),
		Style:     p.Offsets.Style(),
		InnerHTML: b.String(),
	}, nil
}
