package synchronizer

import "github.com/google/uuid"

// IDSource derives identifiers for new elements. The same project, file
// and element key always give the same UUID, so regenerating a file from
// the same description yields the same bytes.
type IDSource struct {
	ns uuid.UUID
}

// NewIDSource returns the source for a project.
func NewIDSource(project string) IDSource {
	return IDSource{ns: uuid.NewSHA1(uuid.NameSpaceURL, []byte("kisync:"+project))}
}

// ID returns the UUID of the element key in file.
func (s IDSource) ID(file, key string) string {
	return uuid.NewSHA1(s.ns, []byte(file+"\x00"+key)).String()
}

// For returns a generator bound to file, for schematic.UnprojectOptions.
func (s IDSource) For(file string) func(key string) string {
	return func(key string) string { return s.ID(file, key) }
}
