package model

import "github.com/hyperpolymath/lithoglyph/pkg/abierr"

// errCollectionExists reports that a collection name is already
// bound, returned as ERR_CONSTRAINT_VIOLATION.
func errCollectionExists(name string) *abierr.Error {
	return abierr.Newf(abierr.ConstraintViolation, "collection %q already exists", name).
		WithRationale("collection name is already bound")
}

func errCollectionNotFound(name string) *abierr.Error {
	return abierr.Newf(abierr.NotFound, "collection %q not found", name)
}

func errWrongKind(name string, want Kind) *abierr.Error {
	return abierr.Newf(abierr.InvalidArgument, "collection %q is not a %s collection", name, want)
}

func errBlockNotFound(blockID uint64) *abierr.Error {
	return abierr.Newf(abierr.NotFound, "block %d not found", blockID).WithBlockRefs(blockID)
}
