// Package bus wires the CQRS buses onto the shared Redis publisher. Topic
// names are derived from struct names under a fixed per-kind prefix so
// publishers and processors never drift apart.
package bus

import (
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
)

const (
	EventTopicPrefix   = "events."
	CommandTopicPrefix = "commands."
)

// Marshaler is shared by every bus and processor; all of them must agree on
// the wire format and the name derivation.
var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}
