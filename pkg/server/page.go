package server

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/future"
	"github.com/vango-dev/projectform/pkg/imagedelete"
	"github.com/vango-dev/projectform/pkg/protocol"
	"github.com/vango-dev/projectform/pkg/staged"
	"github.com/vango-dev/projectform/pkg/taginput"
)

// page is the enhanced project edit page of one session: one staged
// upload controller, its drop zone, a delete flow per persisted image and
// the tag field. Every method runs on the session's event loop.
type page struct {
	s *Session

	ctrl        *staged.Controller
	zone        *staged.DropZone
	inputEvents *staged.Emitter
	dropEvents  *staged.Emitter
	previews    *previewContainer

	// files maps temp ids to the File handed to the controller, so a temp
	// id always denotes the same staged.File.
	files map[string]*staged.File

	flows map[string]*imagedelete.Flow

	confirms    map[uint64]future.Resolver[bool]
	nextConfirm uint64

	tags bool
}

var (
	_ taginput.Page           = (*page)(nil)
	_ imagedelete.Confirmer   = (*page)(nil)
	_ staged.FileInput        = fileInput{}
	_ staged.PreviewContainer = (*previewContainer)(nil)
	_ staged.Highlighter      = highlighter{}
	_ imagedelete.Control     = imageControl{}
)

// newPage wires the components for the elements the hello declared.
func newPage(s *Session) *page {
	cfg := s.server.config
	hello := s.hello
	p := &page{
		s:        s,
		files:    make(map[string]*staged.File),
		flows:    make(map[string]*imagedelete.Flow),
		confirms: make(map[uint64]future.Resolver[bool]),
	}

	if hello.HasElement(ElementFileInput) && hello.HasElement(ElementPreviews) {
		p.inputEvents = staged.NewEmitter()
		p.previews = newPreviewContainer(s)
		ctrlCfg := staged.Config{
			Input:       fileInput{s},
			Previews:    p.previews,
			Alerter:     s,
			Reader:      s.server.previews,
			Loop:        s,
			InputEvents: p.inputEvents,
			MaxFiles:    cfg.MaxFiles,
			MaxFileSize: cfg.MaxFileSize,
			Logger:      s.logger,
		}
		if cfg.Metrics != nil {
			ctrlCfg.Observer = cfg.Metrics
		}
		p.ctrl = staged.New(ctrlCfg)

		if hello.HasElement(ElementDropZone) {
			p.dropEvents = staged.NewEmitter()
			p.zone = staged.NewDropZone(p.ctrl, p.dropEvents, highlighter{s})
		}
	}

	if len(hello.Images) > 0 {
		deleter := &imagedelete.PageDeleter{
			Client:    s.server.deletes,
			URL:       s.deleteURL,
			CSRFToken: s.csrfToken,
			Cookies:   s.cookies,
		}
		// Delete requests outlive the session once sent.
		ctx := context.WithoutCancel(s.ctx)
		for _, id := range hello.Images {
			flowCfg := imagedelete.Config{
				Control:   imageControl{s: s, id: id},
				Confirmer: p,
				Deleter:   deleter,
				Alerter:   s,
				Loop:      s,
				Context:   ctx,
				Logger:    s.logger,
			}
			if cfg.Metrics != nil {
				flowCfg.Observer = cfg.Metrics
			}
			p.flows[id] = imagedelete.NewFlow(flowCfg)
		}
	}

	p.tags = taginput.Attach(p, cfg.TagField, hello.Tags, cfg.TagOptions)

	s.logger.Debug("page wired",
		"uploads", p.ctrl != nil,
		"drop_zone", p.zone != nil,
		"images", len(p.flows),
		"tags", p.tags)
	return p
}

// handle routes one client message.
func (p *page) handle(in inbound) error {
	switch m := in.msg.(type) {
	case *protocol.Event:
		return p.handleEvent(m, in)
	case *protocol.Reply:
		return p.handleReply(m)
	case *protocol.Hello:
		return errors.New("P401").WithDetail("duplicate hello")
	}
	return errors.New("P401").WithDetail(fmt.Sprintf("unexpected %T", in.msg))
}

func (p *page) handleEvent(e *protocol.Event, in inbound) error {
	switch e.Target {
	case ElementFileInput:
		if p.ctrl == nil || e.Name != protocol.EventChange {
			return unknownTarget(e)
		}
		files, err := p.resolve(e.Files, in)
		if err != nil {
			return err
		}
		p.inputEvents.Emit(&staged.Event{Type: staged.EventChange, Files: files})

	case ElementDropZone:
		if p.zone == nil {
			return unknownTarget(e)
		}
		t, ok := staged.ParseEventType(e.Name)
		if !ok || t == staged.EventChange {
			return unknownTarget(e)
		}
		var files []*staged.File
		if t == staged.EventDrop {
			var err error
			if files, err = p.resolve(e.Files, in); err != nil {
				// The drag is over even when its files are unusable.
				p.dropEvents.Emit(&staged.Event{Type: staged.EventDragLeave})
				return err
			}
		}
		p.dropEvents.Emit(&staged.Event{Type: t, Files: files})

	case protocol.TargetPreviewRemove:
		if p.previews == nil || e.Name != protocol.EventClick {
			return unknownTarget(e)
		}
		entry, ok := p.previews.lookup(e.Ref)
		if !ok {
			return errors.New("P402").WithDetail(fmt.Sprintf("unknown preview %q", e.Ref))
		}
		entry.Remove()

	case protocol.TargetDeleteImage:
		flow, ok := p.flows[e.Ref]
		if !ok || e.Name != protocol.EventClick {
			return errors.New("P402").WithDetail(fmt.Sprintf("unknown image %q", e.Ref))
		}
		flow.Activate()

	default:
		return unknownTarget(e)
	}
	return nil
}

func unknownTarget(e *protocol.Event) error {
	return errors.New("P402").WithDetail(fmt.Sprintf("no handler for %s on %q", e.Name, e.Target))
}

// resolve maps temp ids to staged files, reusing the File of an id seen
// before.
func (p *page) resolve(ids []string, in inbound) ([]*staged.File, error) {
	if in.err != nil {
		return nil, in.err
	}
	if in.overCapacity {
		return p.placeholders(ids), nil
	}
	files := make([]*staged.File, 0, len(ids))
	for _, id := range ids {
		if f, ok := p.files[id]; ok {
			files = append(files, f)
			continue
		}
		meta, ok := in.files[id]
		if !ok {
			return nil, errors.New("P402").WithDetail(fmt.Sprintf("unknown temp id %q", id))
		}
		f := &staged.File{
			ID:       id,
			Name:     meta.Filename,
			Size:     meta.Size,
			MIMEType: meta.ContentType,
			Content:  p.opener(id),
		}
		p.files[id] = f
		files = append(files, f)
	}
	return files, nil
}

// placeholders stands in for a batch too large to stage. The controller
// only counts it, so unknown ids are neither looked up nor remembered.
func (p *page) placeholders(ids []string) []*staged.File {
	files := make([]*staged.File, len(ids))
	for i, id := range ids {
		if f, ok := p.files[id]; ok {
			files[i] = f
			continue
		}
		files[i] = &staged.File{ID: id, Name: id}
	}
	return files
}

func (p *page) opener(id string) staged.Opener {
	store := p.s.server.config.Store
	ctx := p.s.ctx
	return staged.OpenerFunc(func() (io.ReadCloser, error) {
		return store.Open(ctx, id)
	})
}

func (p *page) handleReply(r *protocol.Reply) error {
	resolve, ok := p.confirms[r.ID]
	if !ok {
		return errors.New("P402").WithDetail(fmt.Sprintf("unknown prompt %d", r.ID))
	}
	delete(p.confirms, r.ID)
	resolve(r.OK, nil)
	return nil
}

// Confirm implements imagedelete.Confirmer with a confirm op answered by
// a client reply.
func (p *page) Confirm(message string) *future.Future[bool] {
	p.nextConfirm++
	id := p.nextConfirm
	f, resolve := future.New[bool]()
	p.confirms[id] = resolve
	p.s.send(protocol.Confirm(id, message))
	return f
}

// HasElement implements taginput.Page.
func (p *page) HasElement(id string) bool {
	return p.s.hello.HasElement(id)
}

// TagsInput implements taginput.Page.
func (p *page) TagsInput(field string, opts taginput.Options, initial []string) {
	p.s.send(protocol.TagsInput(field, opts, initial))
}

func (p *page) close() {
	if p.zone != nil {
		p.zone.Close()
	}
	if p.ctrl != nil {
		p.ctrl.Close()
	}
	for id, resolve := range p.confirms {
		delete(p.confirms, id)
		resolve(false, ErrSessionClosed)
	}
}

// fileInput mirrors the staged list into the page's file input.
type fileInput struct {
	s *Session
}

func (in fileInput) SetFiles(files []*staged.File) {
	var views []protocol.FileView
	for _, f := range files {
		views = append(views, protocol.FileView{
			TempID:   f.ID,
			Name:     f.Name,
			Size:     f.Size,
			MIMEType: f.MIMEType,
		})
	}
	in.s.send(protocol.SetFiles(ElementFileInput, views))
}

// previewContainer renders preview entries and remembers their ids for
// remove clicks.
type previewContainer struct {
	s       *Session
	next    uint64
	ids     map[*staged.PreviewEntry]string
	entries map[string]*staged.PreviewEntry
}

func newPreviewContainer(s *Session) *previewContainer {
	return &previewContainer{
		s:       s,
		ids:     make(map[*staged.PreviewEntry]string),
		entries: make(map[string]*staged.PreviewEntry),
	}
}

func (c *previewContainer) Append(e *staged.PreviewEntry) {
	c.next++
	id := "p" + strconv.FormatUint(c.next, 10)
	c.ids[e] = id
	c.entries[id] = e
	c.s.send(protocol.AppendPreview(ElementPreviews, protocol.PreviewView{
		ID:     id,
		TempID: e.File.ID,
		Name:   e.File.Name,
		Src:    e.Thumbnail.Src,
	}))
}

func (c *previewContainer) Remove(e *staged.PreviewEntry) {
	id, ok := c.ids[e]
	if !ok {
		return
	}
	delete(c.ids, e)
	delete(c.entries, id)
	c.s.send(protocol.RemovePreview(ElementPreviews, id))
}

func (c *previewContainer) lookup(id string) (*staged.PreviewEntry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// highlighter toggles the drop zone classes.
type highlighter struct {
	s *Session
}

func (h highlighter) SetActive(active bool) {
	if active {
		h.s.send(protocol.AddClass(ElementDropZone, HighlightClasses...))
	} else {
		h.s.send(protocol.RemoveClass(ElementDropZone, HighlightClasses...))
	}
}

// imageControl is the delete button of one persisted image.
type imageControl struct {
	s  *Session
	id string
}

func (c imageControl) ImageID() string { return c.id }

func (c imageControl) SetBusy(busy bool) {
	c.s.send(protocol.SetBusy(c.id, busy))
}

func (c imageControl) Detach() {
	c.s.send(protocol.Detach(c.id))
}
