package testutil

// WithStandardServices adds the standard dataset:
//
//	db-primary   rank 10  eu  1.4.2  [fast primary]
//	cache        rank 10  us  2.0.0  [fast]
//	db-replica   rank 5   eu  1.4.2  [replica]
//	legacy       rank 0   eu  0.9.0  deprecated
func (b *Builder) WithStandardServices() *Builder {
	return b.
		WithService("db-primary", Rank(10), Region("eu"), Version("1.4.2"), Tags("fast", "primary")).
		WithService("cache", Rank(10), Region("us"), Version("2.0.0"), Tags("fast")).
		WithService("db-replica", Rank(5), Region("eu"), Version("1.4.2"), Tags("replica")).
		WithService("legacy", Rank(0), Region("eu"), Version("0.9.0"), Attr("deprecated", true))
}

// WithTieBreakServices adds three services whose keys are (10,1), (10,2)
// and (5,3) when exported into an empty set.
func (b *Builder) WithTieBreakServices() *Builder {
	return b.
		WithService("first", Rank(10)).
		WithService("second", Rank(10)).
		WithService("third", Rank(5))
}
