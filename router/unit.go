package router

import (
	"context"
	"net/url"
)

// Props are handed to a unit before it is mounted.
type Props struct {
	// Submatches of a capturing route, in order.
	Params []string
	// Whether the route requires a session.
	LoggedIn bool
	// Query of the navigation target, for the unit's own use.
	Query url.Values
}

// Unit is a mountable page component.
// Its lifecycle is created → mounted → unmounted; unmounted units are discarded.
type Unit interface {
	Name() string
	SetProps(props Props)
	// Mount is called after the unit has been attached.
	// It starts the unit's own data loads and must not navigate synchronously.
	Mount(ctx context.Context)
	// Unmount is called after the unit has been detached.
	// In-flight loads are the unit's concern.
	Unmount()
}

// Factory creates a fresh unit for every navigation.
type Factory func() Unit

// TransitionNamer is implemented by units that take part in view transitions.
type TransitionNamer interface {
	SetTransitionName(name string)
}

// NotFoundTitle is the heading rendered for unmatched targets.
const NotFoundTitle = "Page not found"

// NotFound is the placeholder unit mounted when no route matches.
type NotFound struct {
	Props          Props
	TransitionName string
}

func (n *NotFound) Name() string {
	return "not-found"
}

func (n *NotFound) Title() string {
	return NotFoundTitle
}

func (n *NotFound) SetProps(props Props) {
	n.Props = props
}

func (n *NotFound) SetTransitionName(name string) {
	n.TransitionName = name
}

func (n *NotFound) Mount(context.Context) {}

func (n *NotFound) Unmount() {}
