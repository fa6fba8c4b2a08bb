// Package crawler implements the recursive directory-listing crawler that
// turns HTML index pages into a tree of data files and sub-directories.
//
// A crawl is synchronous and depth-first. Termination on cyclic listings is
// guaranteed by the per-crawl VisitedSet together with the depth ceiling;
// every failure is converted into an Issue for the affected branch and the
// traversal continues with the next sibling.
package crawler
