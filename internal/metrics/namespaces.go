package metrics

const (
	namespaceBeacon = "beacon"
)

const (
	subsystemLedger = "ledger"
	subsystemGroups = "groups"
	subsystemRelay  = "relay"
	subsystemDKG    = "dkg"
	subsystemReward = "rewards"
)

const (
	LabelEvent = "event"
	LabelKind  = "kind"
)
