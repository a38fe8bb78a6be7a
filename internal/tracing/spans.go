package tracing

// Span attribute keys.
const (
	AttrHandleID   = "handle.id"
	AttrHandleRank = "handle.rank"
	AttrSetName    = "set.name"
	AttrSource     = "chain.source"
	AttrInstance   = "instance.type"
	AttrMethod     = "interceptor.method"
	AttrMatched    = "lookup.matched"
	AttrCacheHit   = "cache.hit"
)

// Span names.
const (
	SpanAcquire     = "handle.acquire"
	SpanChainLookup = "chain.lookup"
	SpanCacheLookup = "cache.lookup"
	SpanCacheFlush  = "cache.flush"
)

// Event names.
const (
	EventEvicted = "cache.evicted"
	EventRelease = "handle.release"
)
