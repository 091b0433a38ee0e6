// Package match validates a computation request against the resource
// registries before anything is executed.
package match

import (
	"context"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
)

// Artifacts carries the resolved addresses the execution runner needs,
// computed once here so downstream steps never re-resolve them.
type Artifacts struct {
	Dataset  string // Dataset is the dataset artifact address
	Software string // Software is the software artifact address
	Unit     string // Unit is the container's execution unit ID
}

// Report holds the result of the four independent validation checks.
// All checks are evaluated even when one has already failed, because
// every failure is reported verbatim back to the ledger.
type Report struct {
	FundsOK        bool      // FundsOK: posted funds equal the sum of resource costs
	DatasetMatch   bool      // DatasetMatch: registry fingerprint equals the submitted one
	SoftwareMatch  bool      // SoftwareMatch: registry fingerprint equals the submitted one
	ContainerAlive bool      // ContainerAlive: the execution unit answered the liveness probe
	Artifacts      Artifacts // Artifacts are the resolved addresses for the runner
}

// Valid reports whether every check passed.
func (r Report) Valid() bool {
	return r.FundsOK && r.DatasetMatch && r.SoftwareMatch && r.ContainerAlive
}

// Prober probes the execution runtime for unit liveness.
type Prober interface {
	Alive(ctx context.Context, unit string) (bool, error)
}

// Matcher resolves resource descriptors and checks a request against them.
type Matcher struct {
	ledger ledger.Client // ledger reads the resource registries
	prober Prober        // prober checks execution unit liveness
}

// New creates a Matcher.
func New(lc ledger.Client, prober Prober) *Matcher {
	return &Matcher{ledger: lc, prober: prober}
}

// Match runs the four checks for one computation request.
// A descriptor that cannot be read fails its check; it never aborts the
// others. Validation failures are terminal for the request, so there is
// nothing to retry here.
func (m *Matcher) Match(ctx context.Context, req *ledger.ComputationRequest) Report {
	var report Report
	var costs uint64
	resolved := true

	dataset, err := m.ledger.Dataset(ctx, req.DatasetID)
	if err != nil {
		logger.Debug("dataset lookup failed", "id", req.DatasetID, "error", err)
		resolved = false
	} else {
		costs, resolved = addCost(costs, dataset.Cost, resolved)
		report.DatasetMatch = dataset.Fingerprint == req.DatasetFingerprint
		report.Artifacts.Dataset = dataset.Location
	}

	software, err := m.ledger.Software(ctx, req.SoftwareID)
	if err != nil {
		logger.Debug("software lookup failed", "id", req.SoftwareID, "error", err)
		resolved = false
	} else {
		costs, resolved = addCost(costs, software.Cost, resolved)
		report.SoftwareMatch = software.Fingerprint == req.SoftwareFingerprint
		report.Artifacts.Software = software.Location
	}

	container, err := m.ledger.Container(ctx, req.ContainerID)
	if err != nil {
		logger.Debug("container lookup failed", "id", req.ContainerID, "error", err)
		resolved = false
	} else {
		costs, resolved = addCost(costs, container.Cost, resolved)
		report.Artifacts.Unit = container.Location

		alive, err := m.prober.Alive(ctx, container.Location)
		if err != nil {
			logger.Debug("liveness probe failed", "unit", container.Location, "error", err)
		}
		report.ContainerAlive = alive
	}

	// Exact integer equality; a missing descriptor can never satisfy it.
	report.FundsOK = resolved && req.Funds == costs

	return report
}

// addCost adds a descriptor cost to the running total. A sum that wraps
// clears ok: a wrapped total could collide with the posted funds.
func addCost(total, cost uint64, ok bool) (uint64, bool) {
	sum := total + cost
	if sum < total {
		return sum, false
	}

	return sum, ok
}

// Fingerprint computes the hex blake3 content fingerprint of an artifact.
// Registry descriptors record fingerprints produced by this function.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
