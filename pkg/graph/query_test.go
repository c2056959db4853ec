package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tradegraph/backend/pkg/extract"
	"github.com/tradegraph/backend/pkg/graph"
	graphmemory "github.com/tradegraph/backend/pkg/graph/memory"
)

func addNode(t *testing.T, store *graphmemory.GraphStore, kind graph.NodeKind, key, display string) graph.Node {
	t.Helper()
	node, err := store.UpsertNode(context.Background(), kind, key, display)
	if err != nil {
		t.Fatalf("UpsertNode(%s, %s): %v", kind, key, err)
	}
	return node
}

func addEdge(t *testing.T, store *graphmemory.GraphStore, relationType string, source, target graph.Node) {
	t.Helper()
	_, err := store.UpsertEdge(context.Background(), relationType, source.ID, target.ID, graph.EdgeSource{
		DocumentID: 1,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("UpsertEdge(%s): %v", relationType, err)
	}
}

func keys(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}

func TestLookupPart(t *testing.T) {
	store := graphmemory.NewGraphStore()

	part := addNode(t, store, graph.NodeKindPart, "A-100", "A-100")
	old := addNode(t, store, graph.NodeKindPart, "B-200", "B-200")
	newer := addNode(t, store, graph.NodeKindPart, "C-300", "C-300")
	equivalent := addNode(t, store, graph.NodeKindPart, "E-500", "E-500")
	compatible := addNode(t, store, graph.NodeKindPart, "K-700", "K-700")
	adapter := addNode(t, store, graph.NodeKindPart, "ADP-1", "ADP-1")
	mfr := addNode(t, store, graph.NodeKindManufacturer, "bosch", "Bosch")
	spec := addNode(t, store, graph.NodeKindSpec, "iso 9001", "ISO 9001")

	addEdge(t, store, graph.RelationManufacturedBy, part, mfr)
	addEdge(t, store, extract.RelationHasSpec, part, spec)
	addEdge(t, store, extract.RelationReplaces, part, old)
	addEdge(t, store, extract.RelationReplaces, newer, part)
	// symmetric relations stored in one direction only
	addEdge(t, store, extract.RelationEquivalentTo, equivalent, part)
	addEdge(t, store, extract.RelationCompatibleWith, part, compatible)
	addEdge(t, store, extract.RelationAdapterRequired, part, adapter)

	details, err := graph.LookupPart(context.Background(), store, "a-100")
	if err != nil {
		t.Fatalf("LookupPart: %v", err)
	}

	if details.Part.ID != part.ID {
		t.Errorf("resolved part %d, want %d", details.Part.ID, part.ID)
	}

	checks := []struct {
		name string
		got  []graph.Node
		want []string
	}{
		{"manufacturers", details.Manufacturers, []string{"bosch"}},
		{"specs", details.Specs, []string{"iso 9001"}},
		{"replaces", details.Replaces, []string{"B-200"}},
		{"replaced_by", details.ReplacedBy, []string{"C-300"}},
		{"equivalent_to", details.EquivalentTo, []string{"E-500"}},
		{"compatible_with", details.CompatibleWith, []string{"K-700"}},
		{"adapters", details.Adapters, []string{"ADP-1"}},
	}
	for _, check := range checks {
		got := keys(check.got)
		if len(got) != len(check.want) {
			t.Errorf("%s = %v, want %v", check.name, got, check.want)
			continue
		}
		for i := range got {
			if got[i] != check.want[i] {
				t.Errorf("%s = %v, want %v", check.name, got, check.want)
				break
			}
		}
	}

	if len(details.Edges) != 7 {
		t.Errorf("got %d edges, want 7", len(details.Edges))
	}
}

func TestLookupPartNotFound(t *testing.T) {
	store := graphmemory.NewGraphStore()
	_, err := graph.LookupPart(context.Background(), store, "NOPE-1")
	if !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestSearchSpecs(t *testing.T) {
	store := graphmemory.NewGraphStore()
	addNode(t, store, graph.NodeKindSpec, "iso 9001", "ISO 9001")
	addNode(t, store, graph.NodeKindSpec, "iso 14001", "ISO 14001")
	addNode(t, store, graph.NodeKindSpec, "din 933", "DIN 933")
	addNode(t, store, graph.NodeKindPart, "ISO-1", "ISO-1")

	specs, err := graph.SearchSpecs(context.Background(), store, "  ISO ")
	if err != nil {
		t.Fatalf("SearchSpecs: %v", err)
	}
	got := keys(specs)
	want := []string{"iso 14001", "iso 9001"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("SearchSpecs = %v, want %v", got, want)
	}
}
