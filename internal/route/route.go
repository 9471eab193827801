// Package route はアプリケーションのルート定義（静的なルートテーブル）を提供します。
package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	PathAuth = "/"
	PathHome = "/home"

	NameAuth = "Auth"
	NameHome = "Home"
)

// ErrInvalidRoute はルート定義が不正な場合のエラーです。
var ErrInvalidRoute = errors.New("invalid route")

// Access はルートのアクセス要件です。
type Access int

const (
	// Unrestricted はセッションの有無にかかわらず表示できます。
	Unrestricted Access = iota
	// PublicOnly は未ログインのユーザー向けです（ログイン画面など）。
	PublicOnly
	// RequiresSession はログイン済みのユーザーのみ表示できます。
	RequiresSession
)

func (a Access) String() string {
	switch a {
	case PublicOnly:
		return "public-only"
	case RequiresSession:
		return "requires-session"
	default:
		return "unrestricted"
	}
}

// Meta はルートに付与するアクセス用のマーカーです。
type Meta struct {
	RequiresSession bool
	PublicOnly      bool
}

// Access はマーカーからアクセス要件を導きます。
// RequiresSession が先に評価されます。
func (m Meta) Access() Access {
	switch {
	case m.RequiresSession:
		return RequiresSession
	case m.PublicOnly:
		return PublicOnly
	default:
		return Unrestricted
	}
}

// Route はパスで識別される遷移先です。
type Route struct {
	Path string
	Name string
	View gin.HandlerFunc
	Meta Meta
}

// Access はルートのアクセス要件を返します。
func (r Route) Access() Access {
	return r.Meta.Access()
}

// Table は起動時に一度だけ作られるルートテーブルです。作成後は変更されません。
type Table struct {
	routes []Route
	byPath map[string]int
	byName map[string]int
}

// NewTable はルートを検証してテーブルを作成します。
func NewTable(routes ...Route) (*Table, error) {
	t := &Table{
		routes: make([]Route, 0, len(routes)),
		byPath: make(map[string]int, len(routes)),
		byName: make(map[string]int, len(routes)),
	}
	for _, r := range routes {
		if err := validate(r); err != nil {
			return nil, err
		}
		if _, dup := t.byPath[r.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrInvalidRoute, r.Path)
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidRoute, r.Name)
		}
		t.byPath[r.Path] = len(t.routes)
		t.byName[r.Name] = len(t.routes)
		t.routes = append(t.routes, r)
	}
	return t, nil
}

func validate(r Route) error {
	if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidRoute, r.Path)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: route %q has no name", ErrInvalidRoute, r.Path)
	}
	// 両方のマーカーを持つルートは矛盾するため起動時に弾く
	if r.Meta.RequiresSession && r.Meta.PublicOnly {
		return fmt.Errorf("%w: route %q is both public-only and requires-session", ErrInvalidRoute, r.Name)
	}
	return nil
}

// Default はアプリケーションの2つのルート（Auth と Home）を持つテーブルを返します。
func Default(authView, homeView gin.HandlerFunc) *Table {
	t, err := NewTable(
		Route{Path: PathAuth, Name: NameAuth, View: authView, Meta: Meta{PublicOnly: true}},
		Route{Path: PathHome, Name: NameHome, View: homeView, Meta: Meta{RequiresSession: true}},
	)
	if err != nil {
		// 固定定義なので到達しない
		panic(err)
	}
	return t
}

// Match はパスに一致するルートを返します。末尾のスラッシュは無視します。
func (t *Table) Match(path string) (Route, bool) {
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	i, ok := t.byPath[path]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// ByName は名前でルートを引きます。
func (t *Table) ByName(name string) (Route, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// Routes は定義順のコピーを返します。
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
