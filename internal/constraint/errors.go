package constraint

import "errors"

var (
	ErrEmptyLabelSet    = errors.New("constraint: empty label set")
	ErrLabelNotFound    = errors.New("constraint: label not found")
	ErrSyntax           = errors.New("constraint: syntax error")
	ErrDuplicateAlias   = errors.New("constraint: duplicate alias")
	ErrAliasCollision   = errors.New("constraint: alias collides with species-tree tip label")
	ErrUndefinedAlias   = errors.New("constraint: undefined alias")
	ErrMultipleOutgroup = errors.New("constraint: multiple outgroup records")
	ErrTooFewSpecies    = errors.New("constraint: constraint tree has fewer than 2 species")
	ErrNotSubtree       = errors.New("constraint: not a subtree of the species tree")
	ErrConflicting      = errors.New("constraint: conflicting constraint ids")
	ErrOutgroupTooLarge = errors.New("constraint: outgroup is not a proper subset of the tip set")
	ErrOutgroupInvalid  = errors.New("constraint: no edge partitions the tree into the outgroup and its complement")
	ErrOutgroupConflict = errors.New("constraint: outgroup and ingroup constraint ids conflict")
)
