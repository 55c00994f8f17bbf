package router

import (
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

var ErrInvalidRoute = zerr.New("invalid route")

// UnitID identifies the page unit a route mounts.
type UnitID string

type matcherKind int

const (
	literalMatcher matcherKind = iota
	capturedMatcher
)

// Matcher is a route pattern: either a literal path or a capturing regular expression.
type Matcher struct {
	kind    matcherKind
	literal string
	pattern *regexp.Regexp
}

// Literal matches a path by exact equality.
func Literal(path string) Matcher {
	return Matcher{kind: literalMatcher, literal: path}
}

// Captured matches with a regular expression; its submatches become the route params.
func Captured(pattern *regexp.Regexp) Matcher {
	return Matcher{kind: capturedMatcher, pattern: pattern}
}

// MustCapture is like Captured but compiles the expression first.
// It panics if the expression cannot be parsed.
func MustCapture(expr string) Matcher {
	return Captured(regexp.MustCompile(expr))
}

func (m Matcher) IsLiteral() bool {
	return m.kind == literalMatcher
}

// Match tests the pattern. path is the target without its query, full is the whole target.
//
// Literal patterns only ever see the path while capturing patterns see the full
// target, query included. This inconsistency is kept as is: existing route
// tables may rely on patterns matching against the query.
func (m Matcher) Match(path, full string) ([]string, bool) {
	if m.kind == literalMatcher {
		return nil, m.literal == path
	}
	match := m.pattern.FindStringSubmatch(full)
	if match == nil {
		return nil, false
	}
	return match[1:], true
}

func (m Matcher) String() string {
	if m.kind == literalMatcher {
		return m.literal
	}
	return m.pattern.String()
}

// Route maps a pattern to a page unit.
type Route struct {
	Pattern   Matcher
	Component UnitID
	// LoggedIn routes require an authenticated session.
	LoggedIn bool
}

// Table is the ordered route table. The first matching route wins.
type Table []Route

// Resolve finds the route for the target (path and optional query).
func (t Table) Resolve(target string) (Route, []string, bool) {
	path, _, _ := strings.Cut(target, "?")
	for _, route := range t {
		if params, ok := route.Pattern.Match(path, target); ok {
			return route, params, true
		}
	}
	return Route{}, nil, false
}

// RouteConfig is the YAML representation of a route.
// Exactly one of Path (literal) and Pattern (capturing) must be set.
type RouteConfig struct {
	Path      string `yaml:"path"`
	Pattern   string `yaml:"pattern"`
	Component string `yaml:"component"`
	LoggedIn  bool   `yaml:"loggedIn"`
}

// BuildTable creates a route table from its configuration.
func BuildTable(configs []RouteConfig) (Table, error) {
	table := make(Table, 0, len(configs))
	for i, c := range configs {
		if c.Component == "" {
			return nil, zerr.With(zerr.Wrap(ErrInvalidRoute, "component missing"), "route", i)
		}
		var m Matcher
		switch {
		case c.Path != "" && c.Pattern != "":
			return nil, zerr.With(zerr.Wrap(ErrInvalidRoute, "both path and pattern set"), "route", i)
		case c.Path != "":
			m = Literal(c.Path)
		case c.Pattern != "":
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(ErrInvalidRoute, err.Error()), "pattern", c.Pattern)
			}
			m = Captured(re)
		default:
			return nil, zerr.With(zerr.Wrap(ErrInvalidRoute, "path or pattern missing"), "route", i)
		}
		table = append(table, Route{Pattern: m, Component: UnitID(c.Component), LoggedIn: c.LoggedIn})
	}
	return table, nil
}

// Components of the movies application.
const (
	HomePage         UnitID = "home-page"
	MovieDetailsPage UnitID = "movie-details-page"
	MoviesPage       UnitID = "movies-page"
	RegisterPage     UnitID = "register-page"
	LoginPage        UnitID = "login-page"
	AccountPage      UnitID = "account-page"
	FavoritePage     UnitID = "favorite-page"
	WatchlistPage    UnitID = "watchlist-page"
)

// DefaultTable returns the route table of the movies application.
func DefaultTable() Table {
	return Table{
		{Pattern: Literal("/"), Component: HomePage},
		{Pattern: MustCapture(`^/movies/(\d+)`), Component: MovieDetailsPage},
		{Pattern: Literal("/movies"), Component: MoviesPage},
		{Pattern: Literal("/account/register"), Component: RegisterPage},
		{Pattern: Literal("/account/login"), Component: LoginPage},
		{Pattern: Literal("/account/"), Component: AccountPage, LoggedIn: true},
		{Pattern: Literal("/account/favorites"), Component: FavoritePage, LoggedIn: true},
		{Pattern: Literal("/account/watchlist"), Component: WatchlistPage, LoggedIn: true},
	}
}
