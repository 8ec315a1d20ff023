package props

// Well-known property keys (spec.md §6), rooted under "media." or
// "pipewire."-equivalent dotted namespaces. Spelled out as typed
// constants rather than a registered-key registry struct, matching the
// plain string-sentinel style used for event-type constants elsewhere
// in this module.
const (
	KeyMediaType     = "media.type"
	KeyMediaCategory = "media.category"
	KeyMediaRole     = "media.role"
	KeyMediaClass    = "media.class"
	KeyFormatDSP     = "format.dsp"

	KeyNodeName        = "node.name"
	KeyNodeAutoconnect = "node.autoconnect"

	KeyPortName = "port.name"

	KeyTargetObject      = "target.object"
	KeyStreamCaptureSink = "stream.capture.sink"
)
