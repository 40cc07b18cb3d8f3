package docsource

import (
	"strings"

	"github.com/ragocore/ragocore/pkg/docfile"
)

// CompositeSource routes List/Get calls across child Document Sources by
// name prefix, grounded on the Python SuperDocSource. A composite's own
// name, if non-empty, prefixes every path it returns so composites can
// nest arbitrarily (§9 "Has a cycle via names not pointers").
type CompositeSource struct {
	name    string
	sources []Source
}

// NewComposite builds a CompositeSource over children, optionally prefixed
// by name (pass "" for a root composite with no prefix of its own).
func NewComposite(name string, sources []Source) *CompositeSource {
	return &CompositeSource{name: name, sources: sources}
}

func (c *CompositeSource) Name() string { return c.name }

func (c *CompositeSource) List(pattern string) ([]Item, error) {
	if pattern == "*" {
		items := make([]Item, 0, len(c.sources))
		for _, s := range c.sources {
			items = append(items, Item{Path: s.Name(), IsDir: true})
		}
		return items, nil
	}

	posix := toPosixPath(pattern)
	segments := strings.Split(posix, "/")
	if len(segments) == 1 && !isGlobPattern(pattern) {
		for _, s := range c.sources {
			if s.Name() == pattern {
				return s.List("*")
			}
		}
		return nil, nil
	}

	firstLevel := segments[0]
	var paths []Item
	for _, s := range c.sources {
		if firstLevel != s.Name() && firstLevel != "**" {
			continue
		}
		children, err := s.List(pattern)
		if err != nil {
			return nil, err
		}
		for _, x := range children {
			p := toPosixPath(x.Path)
			if c.name != "" {
				p = c.name + "/" + p
			}
			if strings.HasSuffix(p, "/.") {
				continue
			}
			paths = append(paths, Item{Path: p, IsDir: x.IsDir, IsFile: x.IsFile})
		}
	}
	return paths, nil
}

// Get resolves path by stripping this composite's own name prefix (if any)
// and delegating to the first child that resolves it — matching the
// Python base's documented limitation (FIXME in the original: assumes the
// first responding child is unambiguously correct).
func (c *CompositeSource) Get(path string) (*docfile.DocumentFile, error) {
	docPath := path
	if c.name != "" {
		posix := toPosixPath(path)
		parts := strings.SplitN(posix, "/", 2)
		if len(parts) == 2 {
			docPath = parts[1]
		}
	}
	for _, s := range c.sources {
		doc, err := s.Get(docPath)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	return nil, nil
}

func (c *CompositeSource) UpdateCache(doc *docfile.DocumentFile) error {
	for _, s := range c.sources {
		if s.Name() == doc.SourceName {
			return s.UpdateCache(doc)
		}
	}
	return nil
}

var _ Source = (*CompositeSource)(nil)
var _ Source = (*LocalFSSource)(nil)
