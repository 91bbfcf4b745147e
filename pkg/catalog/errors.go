package catalog

import "errors"

// Sentinel errors returned by catalog operations, checked with errors.Is
//.
var (
	// ErrNotFound is returned when a named entity does not exist.
	ErrNotFound = errors.New("catalog: entity not found")

	// ErrAlreadyPresent is returned when a create collides with an
	// existing entity of the same name/id.
	ErrAlreadyPresent = errors.New("catalog: entity already present")

	// ErrNotLeader is returned by any write path when this master is
	// not (or is no longer) the Raft leader.
	ErrNotLeader = errors.New("catalog: not leader")

	// ErrParallelSnapshotOperation is returned when a snapshot
	// create/restore/delete is requested while another snapshot
	// operation is still in a non-terminal state — only one snapshot
	// operation may be in flight at a time.
	ErrParallelSnapshotOperation = errors.New("catalog: parallel snapshot operation in progress")

	// ErrInvalidPlacement is returned when a requested ReplicationInfo
	// cannot be satisfied (too few live tablet servers in a placement
	// block, num_replicas below the sum of block minimums, etc).
	ErrInvalidPlacement = errors.New("catalog: invalid placement policy")

	// ErrSchemaMismatch is returned by SetupUniverseReplication when a
	// producer table's schema does not match its proposed consumer
	// table.
	ErrSchemaMismatch = errors.New("catalog: producer/consumer schema mismatch")

	// ErrNotSupported is returned for operations the current code
	// deliberately declines to perform, e.g. restoring a snapshot whose
	// referenced namespace/table no longer exists.
	ErrNotSupported = errors.New("catalog: operation not supported")
)
