package dbsync

// Action names the sync operation a Result belongs to.
type Action string

const (
	ActionPull Action = "pull"
	ActionPush Action = "push"
)

// Outcome classifies how a sync attempt ended. All outcomes are
// expected, reportable states; callers branch on them instead of
// catching errors.
type Outcome string

const (
	// OutcomeNoChange means local and remote were already in sync.
	OutcomeNoChange Outcome = "no_change"

	// OutcomeCreated means pull created the local database from the
	// remote tip; no local file existed before.
	OutcomeCreated Outcome = "created"

	// OutcomeReplaced means pull replaced an existing local database
	// with the remote tip.
	OutcomeReplaced Outcome = "replaced"

	// OutcomePublished means push uploaded a new remote version.
	OutcomePublished Outcome = "published"

	// OutcomeConflictLocalChanged means the live database was mutated
	// outside the protocol since the last sync.
	OutcomeConflictLocalChanged Outcome = "conflict_local_changed"

	// OutcomeConflictRollbackRejected means the observed remote tip is
	// older than the version already applied.
	OutcomeConflictRollbackRejected Outcome = "conflict_rollback_rejected"

	// OutcomeConflictRemoteHeadMismatch means the remote tip moved
	// since the last sync; pull first.
	OutcomeConflictRemoteHeadMismatch Outcome = "conflict_remote_head_mismatch"

	// OutcomeRemoteDeleted means the key has no usable remote version.
	OutcomeRemoteDeleted Outcome = "remote_deleted"

	// OutcomeBackupAlreadyExists means the computed pre-overwrite
	// backup path is already occupied.
	OutcomeBackupAlreadyExists Outcome = "backup_already_exists"

	// OutcomeFailed means an unexpected I/O or store error; the
	// message carries the cause.
	OutcomeFailed Outcome = "failed"
)

// Result is the structured outcome of one Pull or Push call.
type Result struct {
	Action  Action
	Outcome Outcome
	Forced  bool
	Message string

	// Observability extras; zero values when not applicable.
	LocalSHA256Before   string
	LocalSHA256After    string
	RemoteVersionBefore string
	RemoteVersionAfter  string
	BackupPath          string
}

// Ok reports whether the attempt ended in a success outcome.
func (r *Result) Ok() bool {
	switch r.Outcome {
	case OutcomeNoChange, OutcomeCreated, OutcomeReplaced, OutcomePublished:
		return true
	}
	return false
}

// Conflict reports whether the attempt was rejected by a guard rather
// than failing outright.
func (r *Result) Conflict() bool {
	switch r.Outcome {
	case OutcomeConflictLocalChanged, OutcomeConflictRollbackRejected,
		OutcomeConflictRemoteHeadMismatch, OutcomeBackupAlreadyExists:
		return true
	}
	return false
}
