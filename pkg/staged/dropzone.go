package staged

// Highlighter toggles the drop target's "active" styling.
type Highlighter interface {
	SetActive(active bool)
}

// DropZone forwards files dropped on a target region to a Controller.
//
// It suppresses default handling of all drag events on the region, shows
// the active styling while a drag hovers it, and sends dropped files
// through the same validation path as the file input.
type DropZone struct {
	ctrl      *Controller
	highlight Highlighter
	active    bool
	subs      []Subscription
}

// NewDropZone subscribes to the drag events of target.
func NewDropZone(ctrl *Controller, target Target, highlight Highlighter) *DropZone {
	z := &DropZone{ctrl: ctrl, highlight: highlight}
	for _, t := range []EventType{EventDragEnter, EventDragOver, EventDragLeave, EventDrop} {
		z.subs = append(z.subs, target.Subscribe(t, z.handle))
	}
	return z
}

func (z *DropZone) handle(e *Event) {
	e.PreventDefault()
	e.StopPropagation()

	switch e.Type {
	case EventDragEnter, EventDragOver:
		z.setActive(true)
	case EventDragLeave:
		z.setActive(false)
	case EventDrop:
		z.setActive(false)
		if len(e.Files) > 0 {
			z.ctrl.Add(e.Files)
		}
	}
}

func (z *DropZone) setActive(active bool) {
	if z.active == active {
		return
	}
	z.active = active
	if z.highlight != nil {
		z.highlight.SetActive(active)
	}
}

// Active reports whether the active styling is applied.
func (z *DropZone) Active() bool {
	return z.active
}

// Close unsubscribes from the target. Close is idempotent.
func (z *DropZone) Close() {
	for _, sub := range z.subs {
		sub.Unsubscribe()
	}
	z.subs = nil
}
