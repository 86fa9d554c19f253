package topic

import (
	"fmt"
	"strings"
)

const (
	// Wildcard matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last.
	MultiWildcard = "#"
)

// Builder constructs topics of the form {root}/{segment}/{id}.
type Builder struct {
	root  string
	group string
}

// NewBuilder returns a Builder rooted at root (e.g. "otahub/v1").
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Root returns the namespace shared by every topic.
func (b *Builder) Root() string {
	return b.root
}

// Shared returns a copy whose subscription filters are prefixed with
// $share/{group}/ so that replicas split the load.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, group: group}
}

// Build returns the concrete topic for one identifier.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// BuildWildcard returns a filter matching every identifier under segment.
func (b *Builder) BuildWildcard(segment string) string {
	t := b.Build(segment, Wildcard)
	if b.group != "" {
		return fmt.Sprintf("$share/%s/%s", b.group, t)
	}
	return t
}

// ID extracts the trailing identifier from a concrete topic built for segment.
func (b *Builder) ID(segment, topic string) (string, bool) {
	prefix := b.root + "/" + segment + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
