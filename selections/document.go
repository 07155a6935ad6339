package selections

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/zeroinstall/zeroinstall/model"
)

// xmlDocument mirrors the injector selections document grammar closely
// enough for encoding/xml to round-trip it directly, the same approach
// feed.Parse takes for interface XML (feed/parse.go's xmlFeed).
type xmlDocument struct {
	XMLName    xml.Name      `xml:"selections"`
	Interface  string        `xml:"interface,attr"`
	Command    string        `xml:"command,attr"`
	Selections []xmlSelection `xml:"selection"`
}

type xmlSelection struct {
	Interface string      `xml:"interface,attr"`
	FromFeed  string      `xml:"from-feed,attr,omitempty"`
	ID        string       `xml:"id,attr"`
	Version   string       `xml:"version,attr"`
	Arch      string       `xml:"arch,attr,omitempty"`
	Stability string       `xml:"stability,attr,omitempty"`
	Digests   []xmlDigest  `xml:"manifest-digest"`
}

type xmlDigest struct {
	Algorithm string `xml:"algorithm,attr"`
	Value     string `xml:"value,attr"`
}

// Save writes sel to w as a selections document, sorted by interface URI
// for a stable diff-friendly encoding.
func Save(w io.Writer, sel model.Selections) error {
	doc := xmlDocument{
		Interface: sel.InterfaceURI.String(),
		Command:   sel.Command,
	}
	ordered := append([]model.ImplementationSelection(nil), sel.Selections...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].InterfaceURI.String() < ordered[j].InterfaceURI.String()
	})
	for _, s := range ordered {
		xs := xmlSelection{
			Interface: s.InterfaceURI.String(),
			FromFeed:  s.FromFeed.String(),
			ID:        s.ID,
			Version:   s.Version.String(),
			Arch:      s.Architecture.String(),
			Stability: s.Stability.String(),
		}
		for alg, digest := range s.ManifestDigest {
			xs.Digests = append(xs.Digests, xmlDigest{Algorithm: alg, Value: digest})
		}
		sort.Slice(xs.Digests, func(i, j int) bool { return xs.Digests[i].Algorithm < xs.Digests[j].Algorithm })
		doc.Selections = append(doc.Selections, xs)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("selections: encode: %w", err)
	}
	return nil
}

// Load reads a selections document previously written by Save.
func Load(r io.Reader) (model.Selections, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return model.Selections{}, fmt.Errorf("selections: decode: %w", err)
	}

	root, err := model.NewFeedURI(doc.Interface)
	if err != nil {
		return model.Selections{}, fmt.Errorf("selections: root interface: %w", err)
	}

	sel := model.Selections{InterfaceURI: root, Command: doc.Command}
	for _, xs := range doc.Selections {
		iface, err := model.NewFeedURI(xs.Interface)
		if err != nil {
			return model.Selections{}, fmt.Errorf("selections: selection interface: %w", err)
		}
		fromFeed := iface
		if xs.FromFeed != "" {
			if fromFeed, err = model.NewFeedURI(xs.FromFeed); err != nil {
				return model.Selections{}, fmt.Errorf("selections: from-feed: %w", err)
			}
		}
		version, err := model.ParseVersion(xs.Version)
		if err != nil {
			return model.Selections{}, fmt.Errorf("selections: version %q: %w", xs.Version, err)
		}
		digest := make(model.ManifestDigest, len(xs.Digests))
		for _, d := range xs.Digests {
			digest[d.Algorithm] = d.Value
		}
		var stability model.Stability
		if xs.Stability != "" {
			if stability, err = model.ParseStability(xs.Stability); err != nil {
				return model.Selections{}, fmt.Errorf("selections: stability: %w", err)
			}
		}

		sel.Selections = append(sel.Selections, model.ImplementationSelection{
			Implementation: model.Implementation{
				ID:             xs.ID,
				Version:        version,
				Architecture:   model.ParseArchitecture(xs.Arch),
				Stability:      stability,
				ManifestDigest: digest,
				FromFeed:       fromFeed,
			},
			InterfaceURI: iface,
			FromFeed:     fromFeed,
		})
	}
	return sel, nil
}
