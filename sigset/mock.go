package sigset

// StaticBuilder is a Builder that always returns the same underlying
// signatories, re-stamped with the requested index and create time. It
// exists for tests and for cmd/checkpointctl's local-development mode,
// standing in for the real validator-set-derived builder the production
// system supplies.
type StaticBuilder struct {
	Signatories []Signatory
}

// BuildSignatorySet implements Builder.
func (b *StaticBuilder) BuildSignatorySet(index uint32, createTime uint64) (*SignatorySet, error) {
	return New(index, createTime, b.Signatories), nil
}
