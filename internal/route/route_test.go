package route

import (
	"errors"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table := Default(nil, nil)

	auth, ok := table.Match("/")
	if !ok {
		t.Fatal("expected / to match")
	}
	if auth.Name != NameAuth || auth.Access() != PublicOnly {
		t.Fatalf("unexpected auth route: %+v", auth)
	}

	home, ok := table.Match("/home/")
	if !ok {
		t.Fatal("expected /home/ to match")
	}
	if home.Name != NameHome || home.Access() != RequiresSession {
		t.Fatalf("unexpected home route: %+v", home)
	}

	if _, ok := table.Match("/missing"); ok {
		t.Fatal("expected /missing not to match")
	}
	if len(table.Routes()) != 2 {
		t.Fatalf("unexpected route count: %d", len(table.Routes()))
	}
}

func TestMetaWithoutMarkersIsUnrestricted(t *testing.T) {
	if got := (Meta{}).Access(); got != Unrestricted {
		t.Fatalf("Access() = %v, want unrestricted", got)
	}
}

func TestNewTableRejectsBothMarkers(t *testing.T) {
	_, err := NewTable(Route{
		Path: "/both",
		Name: "Both",
		Meta: Meta{RequiresSession: true, PublicOnly: true},
	})
	if !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	cases := map[string][]Route{
		"path":   {{Path: "/a", Name: "A"}, {Path: "/a", Name: "B"}},
		"name":   {{Path: "/a", Name: "A"}, {Path: "/b", Name: "A"}},
		"bad":    {{Path: "a", Name: "A"}},
		"noname": {{Path: "/a"}},
	}
	for name, routes := range cases {
		if _, err := NewTable(routes...); !errors.Is(err, ErrInvalidRoute) {
			t.Fatalf("%s: expected ErrInvalidRoute, got %v", name, err)
		}
	}
}

func TestRoutesReturnsCopy(t *testing.T) {
	table := Default(nil, nil)
	routes := table.Routes()
	routes[0].Path = "/changed"

	if _, ok := table.Match("/"); !ok {
		t.Fatal("table must not be mutated through Routes()")
	}
	if r, _ := table.ByName(NameAuth); r.Path != PathAuth {
		t.Fatalf("unexpected path: %s", r.Path)
	}
}
