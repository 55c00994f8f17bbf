// Package hydrate decides whether server-rendered markup can be adopted on first load.
package hydrate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.trai.ch/zerr"
)

// IslandID is the id of the element embedding the server state.
const IslandID = "ssr-data"

var ErrCorruptIsland = zerr.New("corrupt data island")

// Document is the part of the loaded document the reconciler inspects.
type Document interface {
	// DataIsland returns the text content of the element with the given id.
	DataIsland(id string) (string, bool)
	RemoveDataIsland(id string)
}

// Region is the content region the server may have rendered into.
type Region interface {
	Len() int
}

// State is the server-computed initial state embedded in the data island.
type State struct {
	PageType string          `json:"pageType"`
	Data     json.RawMessage `json:"data"`
}

type Outcome int

const (
	// Skipped: nothing to adopt, the page is rendered client side.
	Skipped Outcome = iota
	// Adopted: the server markup stays and behaviour was bound to it.
	Adopted
	// Failed: the island could not be used, the page must be rendered client side.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Adopted:
		return "adopted"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Binder attaches behaviour to markup that is already present.
// It must not add content to the document.
type Binder interface {
	Bind(ctx context.Context, state State, doc Document) error
}

type BinderFunc func(ctx context.Context, state State, doc Document) error

func (f BinderFunc) Bind(ctx context.Context, state State, doc Document) error {
	return f(ctx, state, doc)
}

type Reconciler struct {
	mutex   *sync.RWMutex
	binders map[string][]Binder
	log     zerolog.Logger
}

// NewReconciler creates a reconciler. The global zerolog logger is used if logger is nil.
func NewReconciler(logger *zerolog.Logger) *Reconciler {
	if logger == nil {
		logger = &log.Logger
	}
	return &Reconciler{
		mutex:   &sync.RWMutex{},
		binders: make(map[string][]Binder),
		log:     logger.With().Str("component", "hydrate").Logger(),
	}
}

// Register adds a binder for the page type. Binders run in registration order.
func (r *Reconciler) Register(pageType string, binder Binder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.binders[pageType] = append(r.binders[pageType], binder)
}

// Reconcile adopts the server markup if the region has content and the document carries a data island.
// On adoption the island is removed. A corrupt island is reported as Failed with an
// ErrCorruptIsland error; the document is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, doc Document, region Region) (State, Outcome, error) {
	raw, ok := doc.DataIsland(IslandID)
	if !ok || region.Len() == 0 {
		r.log.Trace().Bool("island", ok).Msg("Nothing to hydrate")
		return State{}, Skipped, nil
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, Failed, zerr.Wrap(ErrCorruptIsland, err.Error())
	}

	r.mutex.RLock()
	binders := r.binders[state.PageType]
	r.mutex.RUnlock()
	for _, b := range binders {
		if err := b.Bind(ctx, state, doc); err != nil {
			return state, Failed, zerr.With(zerr.Wrap(err, "bind"), "pageType", state.PageType)
		}
	}

	doc.RemoveDataIsland(IslandID)
	r.log.Debug().Str("pageType", state.PageType).Int("binders", len(binders)).Msg("Hydrated server markup")
	return state, Adopted, nil
}
