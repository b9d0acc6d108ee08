package events

import "sort"

// TaxonomyVersion is bumped whenever an event type is added. Types are
// never renamed or removed once they appear in historical entries;
// doing so would make old entries fail a taxonomy check even though
// their hashes still verify.
const TaxonomyVersion = 1

// Event types recorded by the platform's collaborators.
const (
	SubmissionAccepted      = "submission_accepted"
	SubmissionRejected      = "submission_rejected"
	SubmissionFlagged       = "submission_flagged"
	ClusterCreated          = "cluster_created"
	ClusterUpdated          = "cluster_updated"
	ClusterMerged           = "cluster_merged"
	BallotQuestionGenerated = "ballot_question_generated"
	PolicyOptionsGenerated  = "policy_options_generated"
	VoteCast                = "vote_cast"
	CycleOpened             = "cycle_opened"
	CycleClosed             = "cycle_closed"
	CycleTallied            = "cycle_tallied"
)

var taxonomy = map[string]struct{}{
	SubmissionAccepted:      {},
	SubmissionRejected:      {},
	SubmissionFlagged:       {},
	ClusterCreated:          {},
	ClusterUpdated:          {},
	ClusterMerged:           {},
	BallotQuestionGenerated: {},
	PolicyOptionsGenerated:  {},
	VoteCast:                {},
	CycleOpened:             {},
	CycleClosed:             {},
	CycleTallied:            {},
}

// Known reports whether eventType is a member of the current taxonomy.
func Known(eventType string) bool {
	_, ok := taxonomy[eventType]
	return ok
}

// Types returns all known event types, sorted.
func Types() []string {
	out := make([]string, 0, len(taxonomy))
	for t := range taxonomy {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
