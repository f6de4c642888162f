package telemetry

// Span names.
const (
	SpanGeocode       = "geocode.lookup"
	SpanGeozoneSave   = "geozone.save"
	SpanGeozoneGet    = "geozone.get"
	SpanGeozoneBatch  = "geozone.apply_batch"
	SpanFenceObserve  = "fence.observe"
	SpanReplayStart   = "replay.start"
	SpanRenderGeozone = "map.render_geozone"
	SpanRenderTrack   = "map.render_track"
)
