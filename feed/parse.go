package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/trust"
)

// xmlFeed, xmlGroup, and friends mirror the injector/interface XML grammar
// of spec §6 closely enough for encoding/xml to decode directly; Parse
// then walks the decoded tree and flattens group inheritance via
// model.Group, exactly as the teacher's manifest parser (registry/
// manifest/schema1) decodes into wire structs before converting to the
// engine's own domain types.
type xmlFeed struct {
	XMLName      xml.Name     `xml:"interface"`
	Name         string       `xml:"name"`
	Summaries    []xmlLang    `xml:"summary"`
	Descriptions []xmlLang    `xml:"description"`
	Homepage     string       `xml:"homepage"`
	Icons        []xmlIcon    `xml:"icon"`
	Categories   []string     `xml:"category"`
	FeedFor      []xmlFeedRef `xml:"feed-for"`
	Feeds        []xmlFeedSrc `xml:"feed"`
	Groups       []xmlGroup   `xml:"group"`
	Impls        []xmlImpl    `xml:"implementation"`
	PkgImpls     []xmlPkgImpl `xml:"package-implementation"`
}

type xmlLang struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

type xmlIcon struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type xmlFeedRef struct {
	Interface string `xml:"interface,attr"`
}

type xmlFeedSrc struct {
	Src string `xml:"src,attr"`
}

// xmlGroup is recursive: a <group> may nest further <group>, <implementation>,
// and <package-implementation> children.
type xmlGroup struct {
	Version      string       `xml:"version,attr"`
	Released     string       `xml:"released,attr"`
	Stability    string       `xml:"stability,attr"`
	Arch         string       `xml:"arch,attr"`
	Langs        string       `xml:"langs,attr"`
	License      string       `xml:"license,attr"`
	Commands     []xmlCommand `xml:"command"`
	Requires     []xmlDep     `xml:"requires"`
	Restricts    []xmlDep     `xml:"restricts"`
	Groups       []xmlGroup   `xml:"group"`
	Impls        []xmlImpl    `xml:"implementation"`
	PkgImpls     []xmlPkgImpl `xml:"package-implementation"`
}

type xmlImpl struct {
	ID             string          `xml:"id,attr"`
	Version        string          `xml:"version,attr"`
	Released       string          `xml:"released,attr"`
	Stability      string          `xml:"stability,attr"`
	Arch           string          `xml:"arch,attr"`
	Langs          string          `xml:"langs,attr"`
	Rollout        int             `xml:"rollout-percentage,attr"`
	ManifestDigest *xmlManifestDig `xml:"manifest-digest"`
	Archives       []xmlArchive    `xml:"archive"`
	Files          []xmlFile       `xml:"file"`
	Recipes        []xmlRecipe     `xml:"recipe"`
	Commands       []xmlCommand    `xml:"command"`
	Requires       []xmlDep        `xml:"requires"`
	Restricts      []xmlDep        `xml:"restricts"`
}

type xmlPkgImpl struct {
	Package       string `xml:"package,attr"`
	Distributions string `xml:"distributions,attr"`
}

type xmlManifestDig struct {
	SHA1New  string `xml:"sha1new,attr"`
	SHA256   string `xml:"sha256,attr"`
	SHA256New string `xml:"sha256new,attr"`
}

type xmlArchive struct {
	Href        string `xml:"href,attr"`
	Type        string `xml:"type,attr"`
	Size        int64  `xml:"size,attr"`
	Extract     string `xml:"extract,attr"`
	Dest        string `xml:"dest,attr"`
	StartOffset int64  `xml:"start-offset,attr"`
}

type xmlFile struct {
	Href       string `xml:"href,attr"`
	Size       int64  `xml:"size,attr"`
	Dest       string `xml:"dest,attr"`
	Executable bool   `xml:"executable,attr"`
}

type xmlRecipe struct {
	Archives []xmlArchive   `xml:"archive"`
	Files    []xmlFile      `xml:"file"`
	Renames  []xmlRename    `xml:"rename"`
	Removes  []xmlRemove    `xml:"remove"`
	CopyFrom []xmlCopyFrom  `xml:"copy-from"`
}

type xmlRename struct {
	Source string `xml:"source,attr"`
	Dest   string `xml:"dest,attr"`
}

type xmlRemove struct {
	Path string `xml:"path,attr"`
}

type xmlCopyFrom struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source,attr"`
	Dest   string `xml:"dest,attr"`
}

type xmlCommand struct {
	Name     string     `xml:"name,attr"`
	Path     string     `xml:"path,attr"`
	Args     []string   `xml:"arg"`
	Runner   *xmlRunner `xml:"runner"`
	Requires []xmlDep   `xml:"requires"`
}

type xmlRunner struct {
	Interface string   `xml:"interface,attr"`
	Command   string   `xml:"command,attr"`
	Args      []string `xml:"arg"`
	Version   *xmlVersionRange `xml:"version"`
}

type xmlDep struct {
	Interface      string              `xml:"interface,attr"`
	Importance     string              `xml:"importance,attr"`
	OS             string              `xml:"os,attr"`
	Distribution   string              `xml:"distribution,attr"`
	Version        *xmlVersionRange    `xml:"version"`
	Environments   []xmlEnvironment    `xml:"environment"`
	ExecInPath     []xmlExecutableIn   `xml:"executable-in-path"`
	ExecInVar      []xmlExecutableIn   `xml:"executable-in-var"`
}

// xmlEnvironment is 0install's <environment name= insert= value= mode=
// separator=> binding, not named in the distilled grammar but present in
// every real-world feed that sets up a runtime environment variable.
type xmlEnvironment struct {
	Name      string `xml:"name,attr"`
	Insert    string `xml:"insert,attr"`
	Value     string `xml:"value,attr"`
	Separator string `xml:"separator,attr"`
}

// xmlExecutableIn covers both <executable-in-path name=> and
// <executable-in-var name=command=>.
type xmlExecutableIn struct {
	Name    string `xml:"name,attr"`
	Command string `xml:"command,attr"`
}

type xmlVersionRange struct {
	NotBefore string `xml:"not-before,attr"`
	Before    string `xml:"before,attr"`
}

// Parse decodes raw feed XML (after any signature trailer has already been
// stripped by the caller via SplitPayload) into a model.Feed, flattening
// <group> inheritance per spec §9.
func Parse(payload []byte) (*model.Feed, error) {
	var x xmlFeed
	if err := xml.Unmarshal(payload, &x); err != nil {
		return nil, errcode.Wrap(errcode.ParseError, err, "decode feed XML")
	}
	if _, err := requireNamespace(x.XMLName.Space); err != nil {
		return nil, errcode.Wrap(errcode.ParseError, err, "feed root element")
	}

	f := &model.Feed{
		Name:     x.Name,
		Homepage: x.Homepage,
		Categories: x.Categories,
	}
	f.Summaries = langMap(x.Summaries)
	f.Descriptions = langMap(x.Descriptions)
	for _, ic := range x.Icons {
		f.Icons = append(f.Icons, model.Icon{Href: ic.Href, Type: ic.Type})
	}
	for _, ff := range x.FeedFor {
		u, err := model.NewFeedURI(ff.Interface)
		if err != nil {
			return nil, errcode.Wrap(errcode.ParseError, err, "feed-for interface")
		}
		f.FeedFor = append(f.FeedFor, u)
	}
	for _, fs := range x.Feeds {
		u, err := model.NewFeedURI(fs.Src)
		if err != nil {
			return nil, errcode.Wrap(errcode.ParseError, err, "feed src")
		}
		f.Feeds = append(f.Feeds, u)
	}

	root := model.Group{Commands: map[string]model.Command{}}

	for _, impl := range x.Impls {
		parsed, err := convertImpl(impl, root)
		if err != nil {
			return nil, err
		}
		f.Implementations = append(f.Implementations, parsed)
	}
	for _, pkg := range x.PkgImpls {
		f.Implementations = append(f.Implementations, convertPkgImpl(pkg, root))
	}
	for _, g := range x.Groups {
		impls, err := walkGroup(g, root)
		if err != nil {
			return nil, err
		}
		f.Implementations = append(f.Implementations, impls...)
	}

	return f, nil
}

func requireNamespace(s string) (string, error) {
	if s != "" && s != "http://zero-install.sourceforge.net/2004/injector/interface" {
		return "", fmt.Errorf("feed: unexpected namespace %q", s)
	}
	return s, nil
}

func langMap(entries []xmlLang) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		lang := e.Lang
		if lang == "" {
			lang = "en"
		}
		m[lang] = strings.TrimSpace(e.Value)
	}
	return m
}

func walkGroup(g xmlGroup, parent model.Group) ([]model.Implementation, error) {
	own := model.Group{
		VersionPrefix: g.Version,
		Commands:      map[string]model.Command{},
		Languages:     splitLangs(g.Langs),
	}
	if g.Arch != "" {
		own.Architecture = model.ParseArchitecture(g.Arch)
	}
	if g.Stability != "" {
		st, err := model.ParseStability(g.Stability)
		if err != nil {
			return nil, errcode.Wrap(errcode.ParseError, err, "group stability")
		}
		own.Stability = st
	}
	for _, c := range g.Commands {
		cmd, err := convertCommand(c)
		if err != nil {
			return nil, err
		}
		own.Commands[cmd.Name] = cmd
	}
	for _, d := range g.Requires {
		dep, err := convertDep(d, model.ImportanceEssential)
		if err != nil {
			return nil, err
		}
		own.Dependencies = append(own.Dependencies, dep)
	}
	for _, d := range g.Restricts {
		dep, err := convertDep(d, model.ImportanceRecommended)
		if err != nil {
			return nil, err
		}
		own.Restrictions = append(own.Restrictions, dep.Restriction)
	}

	effective := parent.Merge(own)

	var out []model.Implementation
	for _, impl := range g.Impls {
		parsed, err := convertImpl(impl, effective)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	for _, pkg := range g.PkgImpls {
		out = append(out, convertPkgImpl(pkg, effective))
	}
	for _, child := range g.Groups {
		nested, err := walkGroup(child, effective)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func splitLangs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func convertImpl(x xmlImpl, defaults model.Group) (model.Implementation, error) {
	impl := model.Implementation{
		ID:                x.ID,
		Released:          x.Released,
		RolloutPercentage: x.Rollout,
	}
	if x.Version != "" {
		v, err := model.ParseVersion(x.Version)
		if err != nil {
			return model.Implementation{}, errcode.Wrap(errcode.ParseError, err, "implementation version")
		}
		impl.Version = v
	}
	if x.Arch != "" {
		impl.Architecture = model.ParseArchitecture(x.Arch)
	}
	if x.Langs != "" {
		impl.Languages = splitLangs(x.Langs)
	}
	if x.Stability != "" {
		st, err := model.ParseStability(x.Stability)
		if err != nil {
			return model.Implementation{}, errcode.Wrap(errcode.ParseError, err, "implementation stability")
		}
		impl.Stability = st
	}
	if x.ManifestDigest != nil {
		impl.ManifestDigest = model.ManifestDigest{}
		if x.ManifestDigest.SHA1New != "" {
			impl.ManifestDigest["sha1new"] = x.ManifestDigest.SHA1New
		}
		if x.ManifestDigest.SHA256 != "" {
			impl.ManifestDigest["sha256"] = x.ManifestDigest.SHA256
		}
		if x.ManifestDigest.SHA256New != "" {
			impl.ManifestDigest["sha256new"] = x.ManifestDigest.SHA256New
		}
	}

	impl.Commands = map[string]model.Command{}
	for _, c := range x.Commands {
		cmd, err := convertCommand(c)
		if err != nil {
			return model.Implementation{}, err
		}
		impl.Commands[cmd.Name] = cmd
	}
	for _, d := range x.Requires {
		dep, err := convertDep(d, model.ImportanceEssential)
		if err != nil {
			return model.Implementation{}, err
		}
		impl.Dependencies = append(impl.Dependencies, dep)
	}
	for _, d := range x.Restricts {
		dep, err := convertDep(d, model.ImportanceRecommended)
		if err != nil {
			return model.Implementation{}, err
		}
		impl.Restrictions = append(impl.Restrictions, dep.Restriction)
	}

	for _, a := range x.Archives {
		impl.RetrievalMethods = append(impl.RetrievalMethods, convertArchive(a))
	}
	for _, fl := range x.Files {
		impl.RetrievalMethods = append(impl.RetrievalMethods, convertFile(fl))
	}
	for _, r := range x.Recipes {
		recipe, err := convertRecipe(r)
		if err != nil {
			return model.Implementation{}, err
		}
		impl.RetrievalMethods = append(impl.RetrievalMethods, recipe)
	}

	return defaults.ApplyTo(impl), nil
}

func convertPkgImpl(x xmlPkgImpl, defaults model.Group) model.Implementation {
	impl := model.Implementation{
		ID: fmt.Sprintf("package:%s:%s:", x.Distributions, x.Package),
		RetrievalMethods: []model.RetrievalMethod{
			model.ExternalRetrievalMethod{PackageManager: x.Distributions, PackageName: x.Package},
		},
	}
	return defaults.ApplyTo(impl)
}

func convertArchive(a xmlArchive) model.Archive {
	return model.Archive{
		Href:        a.Href,
		MimeType:    a.Type,
		Size:        a.Size,
		Extract:     a.Extract,
		Destination: a.Dest,
		StartOffset: a.StartOffset,
	}
}

func convertFile(f xmlFile) model.SingleFile {
	return model.SingleFile{
		Href:        f.Href,
		Size:        f.Size,
		Destination: f.Dest,
		Executable:  f.Executable,
	}
}

func convertRecipe(r xmlRecipe) (model.Recipe, error) {
	var recipe model.Recipe
	for _, a := range r.Archives {
		recipe.Steps = append(recipe.Steps, convertArchive(a))
	}
	for _, fl := range r.Files {
		recipe.Steps = append(recipe.Steps, convertFile(fl))
	}
	for _, rn := range r.Renames {
		recipe.Steps = append(recipe.Steps, model.RenameStep{Src: rn.Source, Dst: rn.Dest})
	}
	for _, rm := range r.Removes {
		recipe.Steps = append(recipe.Steps, model.RemoveStep{Path: rm.Path})
	}
	for _, cf := range r.CopyFrom {
		recipe.Steps = append(recipe.Steps, model.CopyFromStep{ID: cf.ID, Src: cf.Source, Dst: cf.Dest})
	}
	return recipe, nil
}

func convertCommand(c xmlCommand) (model.Command, error) {
	cmd := model.Command{
		Name:      c.Name,
		Path:      c.Path,
		Arguments: append([]string(nil), c.Args...),
	}
	for _, d := range c.Requires {
		dep, err := convertDep(d, model.ImportanceEssential)
		if err != nil {
			return model.Command{}, err
		}
		cmd.Dependencies = append(cmd.Dependencies, dep)
	}
	if c.Runner != nil {
		u, err := model.NewFeedURI(c.Runner.Interface)
		if err != nil {
			return model.Command{}, errcode.Wrap(errcode.ParseError, err, "runner interface")
		}
		restriction := model.Restriction{InterfaceURI: u}
		if c.Runner.Version != nil {
			vr, err := versionRangeFromBounds(c.Runner.Version.NotBefore, c.Runner.Version.Before)
			if err != nil {
				return model.Command{}, err
			}
			restriction.Versions = vr
		}
		cmd.Runner = &model.Runner{
			InterfaceURI: u,
			Command:      c.Runner.Command,
			Arguments:    append([]string(nil), c.Runner.Args...),
			Restriction:  restriction,
		}
	}
	return cmd, nil
}

func convertDep(d xmlDep, defaultImportance model.Importance) (model.Dependency, error) {
	u, err := model.NewFeedURI(d.Interface)
	if err != nil {
		return model.Dependency{}, errcode.Wrap(errcode.ParseError, err, "requires/restricts interface")
	}
	importance := defaultImportance
	if d.Importance == "recommended" {
		importance = model.ImportanceRecommended
	} else if d.Importance == "essential" {
		importance = model.ImportanceEssential
	}
	restriction := model.Restriction{
		InterfaceURI: u,
		OS:           d.OS,
		Distribution: d.Distribution,
	}
	if d.Version != nil {
		vr, err := versionRangeFromBounds(d.Version.NotBefore, d.Version.Before)
		if err != nil {
			return model.Dependency{}, err
		}
		restriction.Versions = vr
	}
	return model.Dependency{
		InterfaceURI: u,
		Importance:   importance,
		Restriction:  restriction,
		Bindings:     convertBindings(d.Environments, d.ExecInPath, d.ExecInVar),
	}, nil
}

func convertBindings(envs []xmlEnvironment, execPath, execVar []xmlExecutableIn) []model.Binding {
	var out []model.Binding
	for _, e := range envs {
		out = append(out, model.Binding{
			Kind:      model.BindingEnvironment,
			Name:      e.Name,
			Value:     valueOrInsert(e.Value, e.Insert),
			Separator: e.Separator,
		})
	}
	for _, e := range execPath {
		out = append(out, model.Binding{Kind: model.BindingExecutableInPath, Name: e.Name, CommandName: e.Command})
	}
	for _, e := range execVar {
		out = append(out, model.Binding{Kind: model.BindingExecutableInVar, Name: e.Name, CommandName: e.Command})
	}
	return out
}

// valueOrInsert resolves the two mutually-exclusive ways 0install
// environment bindings name their contribution: a literal value, or a
// path relative to the selected implementation's directory.
func valueOrInsert(value, insert string) string {
	if value != "" {
		return value
	}
	return insert
}

// versionRangeFromBounds builds a VersionRange from <version not-before=
// before=> into the engine's "3..!4" interval syntax that
// model.ParseVersionRange already understands.
func versionRangeFromBounds(notBefore, before string) (model.VersionRange, error) {
	if notBefore == "" && before == "" {
		return model.VersionRange{}, nil
	}
	var b strings.Builder
	b.WriteString(notBefore)
	b.WriteString("..")
	if before != "" {
		b.WriteString("!")
		b.WriteString(before)
	}
	return model.ParseVersionRange(b.String())
}

// GetFeed reads and parses the cached copy of uri. A parse or read failure
// is logged and reported as "not found" rather than propagated, so a
// corrupt cache entry never breaks unrelated operations.
func (c *Cache) GetFeed(ctx context.Context, uri model.FeedURI) (*model.Feed, bool) {
	raw, err := c.Raw(uri)
	if err != nil {
		dcontext.GetLogger(ctx).Debugf("feed: %s not in cache: %v", uri, err)
		return nil, false
	}
	payload, _, err := trust.SplitPayload(raw)
	if err != nil {
		dcontext.GetLogger(ctx).Errorf("feed: %s has malformed signature trailer: %v", uri, err)
		return nil, false
	}
	parsed, err := Parse(payload)
	if err != nil {
		dcontext.GetLogger(ctx).Errorf("feed: %s failed to parse: %v", uri, err)
		return nil, false
	}
	parsed.URI = uri
	return parsed, true
}

// GetSignatures returns the raw OpenPGP detached-signature bytes trailing
// the cached copy of uri, or nil if the feed carries no trailer.
func (c *Cache) GetSignatures(uri model.FeedURI) ([]byte, error) {
	raw, err := c.Raw(uri)
	if err != nil {
		return nil, err
	}
	_, sig, err := trust.SplitPayload(raw)
	return sig, err
}
