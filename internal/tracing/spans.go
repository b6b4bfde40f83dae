package tracing

// Span attribute keys.
const (
	AttrPackage   = "package.key"
	AttrFeedName  = "feed.name"
	AttrFeedType  = "feed.type"
	AttrOutcome   = "feed.outcome"
	AttrStatus    = "resolve.status"
	AttrRequestID = "request.id"
	AttrDBVersion = "db.version"
	AttrCount     = "package.count"
	AttrCachePath = "cache.path"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanEnsure   = "live.ensure"
	SpanReadInfo = "live.read_info"
	SpanFeed     = "feed.package_info"
	SpanLoad     = "cache.load"
	SpanSave     = "cache.save"
	SpanApply    = "cache.apply"
)

// Event names for span events.
const (
	EventGhostCreated = "ghost.created"
	EventMismatch     = "feed.mismatch"
	EventCycle        = "dependency.cycle"
)
