package kobject

// ProjectionHandle identifies a directory created by a Projection.
type ProjectionHandle any

// DirSpec describes the directory materialized for a node.
type DirSpec struct {
	// Name is the node's name, unescaped.
	Name string

	// Path is the escaped hierarchy path of the node.
	Path string

	Node       *Node
	Attributes []*Attribute
}

// Projection materializes the hierarchy, typically as a virtual
// filesystem. Methods are called with the registry lock held and must not
// call back into the registry. A nil parent handle means the root.
type Projection interface {
	CreateDir(spec DirSpec, parent ProjectionHandle) (ProjectionHandle, error)
	RemoveDir(h ProjectionHandle)
	RenameDir(h ProjectionHandle, name string) error
	MoveDir(h, newParent ProjectionHandle) error
}

type nopProjection struct{}

type nopHandle struct{}

func (nopProjection) CreateDir(DirSpec, ProjectionHandle) (ProjectionHandle, error) {
	return nopHandle{}, nil
}

func (nopProjection) RemoveDir(ProjectionHandle) {}

func (nopProjection) RenameDir(ProjectionHandle, string) error { return nil }

func (nopProjection) MoveDir(ProjectionHandle, ProjectionHandle) error { return nil }

var _ Projection = nopProjection{}
