package model

import "strings"

// Importance marks how strongly a Dependency constrains the solver.
type Importance int

const (
	ImportanceEssential Importance = iota
	ImportanceRecommended
)

// Restriction narrows the acceptable versions of the interface it's
// attached to, without itself introducing a dependency edge.
type Restriction struct {
	InterfaceURI FeedURI
	Versions     VersionRange
	OS           string
	Distribution string
}

// Dependency is an edge from one implementation to an interface it
// requires, with an importance and an attached version restriction.
type Dependency struct {
	InterfaceURI FeedURI
	Importance   Importance
	Restriction  Restriction
	Bindings     []Binding
}

// BindingKind distinguishes the supported binding shapes.
type BindingKind int

const (
	BindingEnvironment BindingKind = iota
	BindingExecutableInPath
	BindingExecutableInVar
)

// Binding describes how a dependency's selected implementation is exposed
// to the consuming command (environment variable, or an executable
// wrapper placed on PATH / in a named variable).
type Binding struct {
	Kind        BindingKind
	Name        string // env var name, or executable name
	Value       string // literal value / path suffix
	Separator   string
	CommandName string // for ExecutableIn* bindings: the command to expose
}

// Runner is the optional interpreter a Command depends on, e.g. a Python
// command's runner being the "python" interface.
type Runner struct {
	InterfaceURI FeedURI
	Command      string
	Arguments    []string
	Restriction  Restriction
}

// Command is one named entry point of an implementation (conventionally
// "run", "compile", or "test").
type Command struct {
	Name         string
	Path         string
	Arguments    []string
	Runner       *Runner
	Dependencies []Dependency
	Bindings     []Binding
}

// RetrievalMethod is implemented by Archive, SingleFile, Recipe, and
// ExternalRetrievalMethod.
type RetrievalMethod interface {
	retrievalMethodMarker()
}

// Archive is a download-and-extract retrieval method.
type Archive struct {
	Href        string
	MimeType    string
	Size        int64
	Extract     string // sub_dir to strip, if any
	Destination string
	StartOffset int64
}

func (Archive) retrievalMethodMarker() {}

// SingleFile places one downloaded file at Destination.
type SingleFile struct {
	Href        string
	Size        int64
	Destination string
	Executable  bool
}

func (SingleFile) retrievalMethodMarker() {}

// Step is implemented by the Recipe step kinds: Archive, SingleFile,
// RenameStep, RemoveStep, CopyFromStep.
type Step interface {
	stepMarker()
}

func (Archive) stepMarker()    {}
func (SingleFile) stepMarker() {}

// RenameStep moves src to dst within the recipe's working directory.
type RenameStep struct{ Src, Dst string }

func (RenameStep) stepMarker() {}

// RemoveStep deletes path (recursively if it names a directory).
type RemoveStep struct{ Path string }

func (RemoveStep) stepMarker() {}

// CopyFromStep copies Src from another implementation (identified by ID
// within the same feed) to Dst in the working directory.
type CopyFromStep struct {
	ID       string
	Src, Dst string
}

func (CopyFromStep) stepMarker() {}

// Recipe is an ordered list of tree-manipulating Steps producing an
// implementation directory.
type Recipe struct {
	Steps []Step
}

func (Recipe) retrievalMethodMarker() {}

// ExternalRetrievalMethod represents an implementation.ID of the form
// "package:<manager>:<name>:<version>" resolved through a native package
// manager rather than downloaded.
type ExternalRetrievalMethod struct {
	PackageManager string
	PackageName    string
}

func (ExternalRetrievalMethod) retrievalMethodMarker() {}

// IsPackageID reports whether id names an external package rather than a
// content-addressed implementation.
func IsPackageID(id string) bool { return strings.HasPrefix(id, "package:") }

// Implementation is a concrete installable artifact of an interface.
type Implementation struct {
	ID                string
	Version           ImplementationVersion
	Released          string
	Architecture      Architecture
	Languages         []string
	Stability         Stability
	ManifestDigest    ManifestDigest
	RetrievalMethods  []RetrievalMethod
	Commands          map[string]Command
	Dependencies      []Dependency
	Restrictions      []Restriction
	Bindings          []Binding
	LocalPath         string // if set, substitutes for a store lookup
	FromFeed          FeedURI
	RolloutPercentage int // 0 or 100 means "always eligible"; otherwise a staged-rollout dice roll applies
}

// IsLocal reports whether the implementation is backed by a local
// directory rather than the content-addressed store.
func (i Implementation) IsLocal() bool { return i.LocalPath != "" }
