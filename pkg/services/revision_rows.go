package services

import (
	"context"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

// RevisionRowProvider resolves uploaded BOM revisions to comparable rows.
// It is owned by the upload pipeline; the diff engine only reads from it.
type RevisionRowProvider interface {
	// GetRevisionRows returns the rows of a revision, or nil if the tenant has no such revision.
	GetRevisionRows(ctx context.Context, tenantID, revisionID string) ([]models.ComparableRow, error)
	// LatestRevisionPair returns the two most recent revisions of an upload session
	// as (left, right). Both are empty when the session has fewer than two revisions.
	LatestRevisionPair(ctx context.Context, tenantID, sessionID string) (string, string, error)
}
