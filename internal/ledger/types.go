// Package ledger is the typed client for the chain node's registries:
// computations, resources, results and payments.
package ledger

// ComputationRequest identifies one settlement attempt.
// ID is the idempotency key: at most one terminal settlement action
// (commit or revert) is applied per ID.
type ComputationRequest struct {
	ID          string `json:"id"`          // ID is the ledger-assigned computation identifier
	DatasetID   string `json:"datasetID"`   // DatasetID references the dataset descriptor
	SoftwareID  string `json:"softwareID"`  // SoftwareID references the software descriptor
	ContainerID string `json:"containerID"` // ContainerID references the container descriptor
	Requester   string `json:"requester"`   // Requester is the paying account
	ResultOwner string `json:"resultOwner"` // ResultOwner is the beneficiary account for the result
	Funds       uint64 `json:"funds"`       // Funds is the posted amount in the smallest currency unit

	// DatasetFingerprint and SoftwareFingerprint are the content
	// fingerprints the requester submitted with the request. They are
	// matched against the registry's recorded fingerprints so a request
	// cannot claim one resource while funding another.
	DatasetFingerprint  string `json:"datasetFingerprint"`
	SoftwareFingerprint string `json:"softwareFingerprint"`
}

// ResourceDescriptor describes a dataset, software or container registry entry.
// Read-only from the oracle's perspective.
type ResourceDescriptor struct {
	ID          string `json:"id"`          // ID is the registry identifier
	Cost        uint64 `json:"cost"`        // Cost is the posted price in the smallest currency unit
	Fingerprint string `json:"fingerprint"` // Fingerprint is the hex blake3 hash of the artifact
	Owner       string `json:"owner"`       // Owner is the provider account
	Location    string `json:"location"`    // Location is the artifact address; for containers, the execution unit ID
}

// ComputationEvent is one "computation submitted" event from the chain.
// Delivery is at-least-once; Seq orders events within the stream.
type ComputationEvent struct {
	Seq           uint64 `json:"seq"`           // Seq is the event sequence number
	ComputationID string `json:"computationID"` // ComputationID is the submitted computation
	DatasetID     string `json:"datasetID"`     // DatasetID references the dataset descriptor
	SoftwareID    string `json:"softwareID"`    // SoftwareID references the software descriptor
	ContainerID   string `json:"containerID"`   // ContainerID references the container descriptor
}
