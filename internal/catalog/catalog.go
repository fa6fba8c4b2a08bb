// Package catalog defines the listing tree produced by the crawler and the
// catalog document that the exporter serializes.
package catalog

import "sort"

// FileEntry is one discovered data file.
type FileEntry struct {
	URL          string `json:"url" yaml:"url"`
	Size         string `json:"size,omitempty" yaml:"size,omitempty"`
	LastModified string `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
}

// ListingNode represents one visited directory listing.
//
// Directories never holds an empty node; use Attach to add children so the
// pruning rule is applied at the point of attachment.
type ListingNode struct {
	Files       []FileEntry             `json:"files" yaml:"files"`
	Directories map[string]*ListingNode `json:"directories" yaml:"directories"`
}

// NewListingNode returns an empty node with its maps allocated so that it
// serializes as {files: [], directories: {}} rather than nulls.
func NewListingNode() *ListingNode {
	return &ListingNode{
		Files:       []FileEntry{},
		Directories: map[string]*ListingNode{},
	}
}

// IsEmpty reports whether the node has no files and no directories.
func (n *ListingNode) IsEmpty() bool {
	if n == nil {
		return true
	}
	return len(n.Files) == 0 && len(n.Directories) == 0
}

// AddFile appends a file entry.
func (n *ListingNode) AddFile(entry FileEntry) {
	n.Files = append(n.Files, entry)
}

// Attach stores child under name unless it is empty or name is already taken.
// It returns true when the child was stored.
func (n *ListingNode) Attach(name string, child *ListingNode) bool {
	if child.IsEmpty() || name == "" {
		return false
	}
	if n.Directories == nil {
		n.Directories = map[string]*ListingNode{}
	}
	if _, exists := n.Directories[name]; exists {
		return false
	}
	n.Directories[name] = child
	return true
}

// FileCount returns the number of files in the subtree rooted at n.
func (n *ListingNode) FileCount() int {
	total := 0
	n.Walk(func(_ string, node *ListingNode) {
		total += len(node.Files)
	})
	return total
}

// Walk visits n and every descendant depth-first. Directory names are visited
// in sorted order and joined with "/" to form the path passed to fn; the root
// has the empty path.
func (n *ListingNode) Walk(fn func(path string, node *ListingNode)) {
	n.walk("", fn)
}

func (n *ListingNode) walk(prefix string, fn func(string, *ListingNode)) {
	if n == nil {
		return
	}
	fn(prefix, n)
	names := make([]string, 0, len(n.Directories))
	for name := range n.Directories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childPath := name
		if prefix != "" {
			childPath = prefix + "/" + name
		}
		n.Directories[name].walk(childPath, fn)
	}
}

// FileURLs flattens the subtree into the list of access URLs.
func (n *ListingNode) FileURLs() []string {
	var urls []string
	n.Walk(func(_ string, node *ListingNode) {
		for _, f := range node.Files {
			urls = append(urls, f.URL)
		}
	})
	return urls
}

// CatalogEntry is the output unit for one top-level dataset.
type CatalogEntry struct {
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description" yaml:"description"`
	Public      bool         `json:"public" yaml:"public"`
	BaseURL     string       `json:"base_url" yaml:"base_url"`
	Contents    *ListingNode `json:"contents" yaml:"contents"`
}

// Document maps dataset titles to their catalog entries.
type Document map[string]CatalogEntry

// Titles returns the document keys in sorted order.
func (d Document) Titles() []string {
	titles := make([]string, 0, len(d))
	for title := range d {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// FileCount sums the files of every entry.
func (d Document) FileCount() int {
	total := 0
	for _, entry := range d {
		total += entry.Contents.FileCount()
	}
	return total
}
