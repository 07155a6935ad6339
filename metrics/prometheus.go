package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics.
	NamespacePrefix = "zeroinstall"
)

var (
	// StoreNamespace is the prometheus namespace of implementation-store and
	// manifest related operations (adds, optimise runs, verify failures).
	StoreNamespace = metrics.NewNamespace(NamespacePrefix, "store", nil)

	// FetchNamespace is the prometheus namespace of fetcher/recipe related
	// operations (downloads, mirror fallbacks, cache hits).
	FetchNamespace = metrics.NewNamespace(NamespacePrefix, "fetch", nil)

	// SolverNamespace is the prometheus namespace of dependency-solver related
	// operations (solve attempts, backtracks, conflict sets).
	SolverNamespace = metrics.NewNamespace(NamespacePrefix, "solver", nil)

	// StoreAdds counts Store.AddDirectory calls, labeled by outcome
	// ("added", "rejected"). An entry that another writer had already
	// committed counts as "added", and Store.AddArchives does not update it.
	StoreAdds = StoreNamespace.NewLabeledCounter("adds", "The number of directories committed into the implementation store", "outcome")

	// FetchOutcomes counts Fetch calls, labeled by outcome ("cache-hit",
	// "local", "downloaded", "error").
	FetchOutcomes = FetchNamespace.NewLabeledCounter("outcomes", "The number of Fetch calls by outcome", "outcome")

	// Solves counts Solver.Solve calls, labeled by outcome ("ok", "error").
	Solves = SolverNamespace.NewLabeledCounter("solves", "The number of Solve calls by outcome", "outcome")
)

func init() {
	metrics.Register(StoreNamespace)
	metrics.Register(FetchNamespace)
	metrics.Register(SolverNamespace)
}
