package indexer

import "errors"

// errMissingOrgID is returned when a Document in the batch lacks the
// tenant-isolation org id the payload invariant requires.
var errMissingOrgID = errors.New("indexer: document missing required org_id")
