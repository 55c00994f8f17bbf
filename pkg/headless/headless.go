// Package headless provides in-memory stand-ins for the browser collaborators of the router.
package headless

import (
	"context"
	"sync"

	"github.com/always-cache/spa-shell/router"
)

// Markup is server rendered content present in a Surface before any unit was attached.
type Markup string

// Surface is an in-memory content region.
type Surface struct {
	mutex       *sync.Mutex
	children    []any
	maxAttached int
}

func NewSurface(markup ...Markup) *Surface {
	s := &Surface{mutex: &sync.Mutex{}}
	for _, m := range markup {
		s.children = append(s.children, m)
	}
	return s
}

func (s *Surface) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.children)
}

func (s *Surface) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.children = nil
}

func (s *Surface) Attach(u router.Unit) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.children = append(s.children, u)
	s.maxAttached = max(s.maxAttached, len(s.children))
}

// Children returns the attached units and markup.
func (s *Surface) Children() []any {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]any(nil), s.children...)
}

// MaxAttached is the highest number of children ever present at once.
func (s *Surface) MaxAttached() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.maxAttached
}

// History is a linear history stack.
type History struct {
	mutex   *sync.Mutex
	entries []string
	index   int
}

// NewHistory creates a history positioned at the initial location.
func NewHistory(location string) *History {
	return &History{
		mutex:   &sync.Mutex{},
		entries: []string{location},
	}
}

// Push adds an entry after the current one, dropping any forward entries.
func (h *History) Push(target string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.entries = append(h.entries[:h.index+1], target)
	h.index++
}

func (h *History) Location() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.entries[h.index]
}

func (h *History) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.entries)
}

// Back moves one entry back and returns the new location.
// It reports false at the start of the history.
func (h *History) Back() (string, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.index == 0 {
		return h.entries[0], false
	}
	h.index--
	return h.entries[h.index], true
}

// Forward moves one entry forward and returns the new location.
func (h *History) Forward() (string, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.index == len(h.entries)-1 {
		return h.entries[h.index], false
	}
	h.index++
	return h.entries[h.index], true
}

// Session is a settable login flag.
type Session struct {
	mutex    *sync.RWMutex
	loggedIn bool
}

func NewSession(loggedIn bool) *Session {
	return &Session{mutex: &sync.RWMutex{}, loggedIn: loggedIn}
}

func (s *Session) IsAuthenticated() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.loggedIn
}

func (s *Session) SetLoggedIn(loggedIn bool) {
	s.mutex.Lock()
	s.loggedIn = loggedIn
	s.mutex.Unlock()
}

// Transitioner runs view transitions synchronously and counts them.
type Transitioner struct {
	mutex *sync.Mutex
	count int
}

func NewTransitioner() *Transitioner {
	return &Transitioner{mutex: &sync.Mutex{}}
}

func (t *Transitioner) StartViewTransition(update func()) {
	t.mutex.Lock()
	t.count++
	t.mutex.Unlock()
	update()
}

func (t *Transitioner) Count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.count
}

// Events dispatches clicks and history pops to the registered handlers.
type Events struct {
	mutex *sync.RWMutex
	click func(router.Link) bool
	pop   func(string)
}

func NewEvents() *Events {
	return &Events{mutex: &sync.RWMutex{}}
}

func (e *Events) OnClick(handler func(router.Link) bool) {
	e.mutex.Lock()
	e.click = handler
	e.mutex.Unlock()
}

func (e *Events) OnPop(handler func(string)) {
	e.mutex.Lock()
	e.pop = handler
	e.mutex.Unlock()
}

// Click dispatches a click and reports whether the default action was prevented.
func (e *Events) Click(link router.Link) bool {
	e.mutex.RLock()
	handler := e.click
	e.mutex.RUnlock()
	if handler == nil {
		return false
	}
	return handler(link)
}

// Pop dispatches a history pop.
func (e *Events) Pop(location string) {
	e.mutex.RLock()
	handler := e.pop
	e.mutex.RUnlock()
	if handler != nil {
		handler(location)
	}
}

// Document holds data islands by element id.
type Document struct {
	mutex   *sync.Mutex
	islands map[string]string
}

func NewDocument() *Document {
	return &Document{mutex: &sync.Mutex{}, islands: make(map[string]string)}
}

func (d *Document) SetDataIsland(id, content string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.islands[id] = content
}

func (d *Document) DataIsland(id string) (string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	content, ok := d.islands[id]
	return content, ok
}

func (d *Document) RemoveDataIsland(id string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.islands, id)
}

// Page is a unit recording its lifecycle.
type Page struct {
	mutex          *sync.Mutex
	name           string
	props          router.Props
	mounted        bool
	unmounted      bool
	transitionName string
}

func NewPage(name string) *Page {
	return &Page{mutex: &sync.Mutex{}, name: name}
}

func (p *Page) Name() string {
	return p.name
}

func (p *Page) SetProps(props router.Props) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.props = props
}

func (p *Page) Props() router.Props {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.props
}

func (p *Page) Mount(context.Context) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.mounted = true
}

func (p *Page) Unmount() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.unmounted = true
}

func (p *Page) SetTransitionName(name string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.transitionName = name
}

func (p *Page) TransitionName() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.transitionName
}

func (p *Page) Mounted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.mounted
}

func (p *Page) Unmounted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.unmounted
}

// Pages creates recording pages and keeps every instance created.
type Pages struct {
	mutex   *sync.Mutex
	created []*Page
}

func NewPages() *Pages {
	return &Pages{mutex: &sync.Mutex{}}
}

// Factory returns a router factory for pages with the given name.
func (p *Pages) Factory(name string) router.Factory {
	return func() router.Unit {
		page := NewPage(name)
		p.mutex.Lock()
		p.created = append(p.created, page)
		p.mutex.Unlock()
		return page
	}
}

// Units registers a page factory for every component of the table.
func (p *Pages) Units(table router.Table) map[router.UnitID]router.Factory {
	units := make(map[router.UnitID]router.Factory, len(table))
	for _, route := range table {
		units[route.Component] = p.Factory(string(route.Component))
	}
	return units
}

// Created returns all pages created so far, oldest first.
func (p *Pages) Created() []*Page {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]*Page(nil), p.created...)
}
