package router

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/always-cache/spa-shell/hydrate"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.trai.ch/zerr"
)

// DefaultLoginPath is the redirect target for routes requiring a session.
const DefaultLoginPath = "/account/login"

// NavLinkClass marks links handled by the controller.
const NavLinkClass = "navlink"

var ErrGatedLogin = zerr.New("login route requires a session")

// Surface is the content region units are attached to.
type Surface interface {
	// Len returns the number of attached children, server rendered markup included.
	Len() int
	// Clear detaches all children.
	Clear()
	Attach(u Unit)
}

// History is the linear session history.
type History interface {
	Push(target string)
	// Location returns the current path and query.
	Location() string
	Len() int
}

// Session reports the authentication state of the process.
type Session interface {
	IsAuthenticated() bool
}

// SessionFunc adapts a function to the Session interface.
type SessionFunc func() bool

func (f SessionFunc) IsAuthenticated() bool {
	return f()
}

// Transitioner runs a DOM update as an animated view transition.
// An update the transitioner has not run by the time StartViewTransition returns
// is applied by the controller; calling it later is a no-op.
type Transitioner interface {
	StartViewTransition(update func())
}

// Link is a clicked anchor.
type Link struct {
	Href    string
	Classes []string
}

func (l Link) HasClass(class string) bool {
	return slices.Contains(l.Classes, class)
}

// Events delivers user navigation to the controller.
type Events interface {
	// OnClick registers the click interceptor; the handler returns true to prevent the default action.
	OnClick(handler func(Link) bool)
	// OnPop registers the history pop listener.
	OnPop(handler func(location string))
}

type Config struct {
	Table Table
	Units map[UnitID]Factory
	// Required collaborators
	Surface Surface
	History History
	// Session defaults to logged out.
	Session Session
	// Optional; without it units are swapped synchronously.
	Transitioner Transitioner
	// Optional; without it user navigation has to be fed to HandleClick and HandlePop.
	Events Events
	// Optional hydration of server rendered markup on Init.
	Reconciler *hydrate.Reconciler
	Document   hydrate.Document
	// Origin of the application, used to recognize internal links.
	Origin *url.URL
	// LoginPath defaults to DefaultLoginPath.
	LoginPath string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// State is a snapshot of the navigation state.
type State struct {
	CurrentPath  string
	CurrentQuery url.Values
	Mounted      Unit
	HistoryDepth int
	// Hydrated is set while the server rendered markup is in place.
	Hydrated bool
}

// Controller owns the navigation state. Navigations are serialized.
type Controller struct {
	table        Table
	units        map[UnitID]Factory
	surface      Surface
	history      History
	session      Session
	transitioner Transitioner
	events       Events
	reconciler   *hydrate.Reconciler
	document     hydrate.Document
	origin       *url.URL
	loginPath    string
	log          zerolog.Logger

	mutex *sync.Mutex
	// context of Init, used for event driven navigations
	ctx   context.Context
	state State
}

func NewController(config Config) (*Controller, error) {
	if config.Surface == nil || config.History == nil {
		return nil, zerr.New("controller needs a surface and a history")
	}
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	if config.Session == nil {
		config.Session = SessionFunc(func() bool { return false })
	}
	if config.Origin == nil {
		config.Origin = &url.URL{Scheme: "http", Host: "localhost"}
	}
	// a gated login route would redirect to itself forever
	if route, _, ok := config.Table.Resolve(config.LoginPath); ok && route.LoggedIn {
		return nil, zerr.With(zerr.Wrap(ErrGatedLogin, "invalid route table"), "loginPath", config.LoginPath)
	}
	return &Controller{
		table:        config.Table,
		units:        config.Units,
		surface:      config.Surface,
		history:      config.History,
		session:      config.Session,
		transitioner: config.Transitioner,
		events:       config.Events,
		reconciler:   config.Reconciler,
		document:     config.Document,
		origin:       config.Origin,
		loginPath:    config.LoginPath,
		log:          logger.With().Str("component", "router").Logger(),
		mutex:        &sync.Mutex{},
		ctx:          context.Background(),
	}, nil
}

// Init adopts server rendered markup if possible, otherwise resolves the current location.
// It then registers the click and pop handlers.
func (c *Controller) Init(ctx context.Context) {
	c.mutex.Lock()
	c.ctx = ctx
	location := c.history.Location()
	if !c.hydrate(ctx, location) {
		c.navigate(ctx, location, false)
	}
	c.mutex.Unlock()

	if c.events != nil {
		c.events.OnClick(c.HandleClick)
		c.events.OnPop(c.HandlePop)
	}
}

// hydrate reports whether the server markup was adopted.
func (c *Controller) hydrate(ctx context.Context, location string) bool {
	if c.reconciler == nil || c.document == nil {
		return false
	}
	_, outcome, err := c.reconciler.Reconcile(ctx, c.document, c.surface)
	switch outcome {
	case hydrate.Adopted:
		c.setLocation(location)
		c.state.Hydrated = true
		return true
	case hydrate.Failed:
		c.log.Warn().Err(err).Msg("Failed to hydrate server markup, falling back to client rendering")
	}
	return false
}

// Navigate mounts the unit for the target.
// With recordHistory a history entry is pushed before the target is resolved.
func (c *Controller) Navigate(ctx context.Context, target string, recordHistory bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.navigate(ctx, target, recordHistory)
}

func (c *Controller) navigate(ctx context.Context, target string, recordHistory bool) {
	if recordHistory {
		c.history.Push(target)
	}

	var unit Unit
	route, params, ok := c.table.Resolve(target)
	if ok {
		factory, found := c.units[route.Component]
		switch {
		case !found:
			c.log.Warn().Str("component", string(route.Component)).Str("target", target).Msg("No unit registered for component")
		case route.LoggedIn && !c.session.IsAuthenticated():
			// no unit is created for the discarded resolution
			c.log.Debug().Str("target", target).Str("redirect", c.loginPath).Msg("Session required")
			c.navigate(ctx, c.loginPath, true)
			return
		default:
			unit = factory()
		}
	}
	if unit == nil {
		c.log.Debug().Str("target", target).Msg("No route found")
		unit = &NotFound{}
		params = nil
		route = Route{}
	}

	c.setLocation(target)
	unit.SetProps(Props{
		Params:   params,
		LoggedIn: route.LoggedIn,
		Query:    c.state.CurrentQuery,
	})
	c.swap(ctx, unit)
	c.log.Trace().Str("target", target).Str("unit", unit.Name()).Msg("Mounted unit")
}

// swap detaches the current content before attaching the unit,
// as a view transition if supported.
func (c *Controller) swap(ctx context.Context, unit Unit) {
	previous := c.state.Mounted
	once := &sync.Once{}
	update := func() {
		once.Do(func() {
			c.surface.Clear()
			if previous != nil {
				previous.Unmount()
			}
			c.surface.Attach(unit)
			unit.Mount(ctx)
		})
	}
	c.state.Mounted = unit
	c.state.Hydrated = false

	if c.transitioner == nil {
		update()
		return
	}
	if named, ok := previous.(TransitionNamer); ok {
		named.SetTransitionName("old")
	}
	if named, ok := unit.(TransitionNamer); ok {
		named.SetTransitionName("new")
	}
	c.transitioner.StartViewTransition(update)
	// a deferred update must not reorder swaps: the surface matches the state when the navigation returns
	update()
}

func (c *Controller) setLocation(target string) {
	path, query, _ := strings.Cut(target, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	c.state.CurrentPath = path
	c.state.CurrentQuery = values
}

// HandleClick navigates for internal navigation links and reports whether it did.
func (c *Controller) HandleClick(link Link) bool {
	if !link.HasClass(NavLinkClass) {
		return false
	}
	ref, err := url.Parse(link.Href)
	if err != nil {
		c.log.Debug().Err(err).Str("href", link.Href).Msg("Ignoring link")
		return false
	}
	current, err := url.Parse(c.history.Location())
	if err != nil {
		current = &url.URL{Path: "/"}
	}
	target := c.origin.ResolveReference(current).ResolveReference(ref)
	if target.Scheme != c.origin.Scheme || target.Host != c.origin.Host {
		return false
	}
	c.Navigate(c.ctx, target.RequestURI(), true)
	return true
}

// HandlePop resolves the location the history moved to, without pushing an entry.
func (c *Controller) HandlePop(location string) {
	// the full location including the query, unlike a pathname-only popstate handler
	c.Navigate(c.ctx, location, false)
}

func (c *Controller) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state := c.state
	state.CurrentQuery = cloneValues(c.state.CurrentQuery)
	state.HistoryDepth = c.history.Len()
	return state
}

func cloneValues(v url.Values) url.Values {
	clone := make(url.Values, len(v))
	for k, vv := range v {
		clone[k] = slices.Clone(vv)
	}
	return clone
}
