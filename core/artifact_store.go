package core

import "context"

// ArtifactStore persists versioned binary artifacts scoped to a session.
// Every Save produces a new monotonically increasing version for the
// filename; Load with version < 0 returns the latest. Changes surface as an
// ArtifactDelta on the owning event and commit with the same ordering
// guarantees as state deltas.
type ArtifactStore interface {
	// Save stores data under filename and returns the version it produced.
	Save(ctx context.Context, appName, userID, sessionID, filename string, data []byte) (int, error)

	// Load returns the bytes of the given version, or the latest when
	// version < 0. Missing artifacts return ErrNotFound from the
	// implementing package.
	Load(ctx context.Context, appName, userID, sessionID, filename string, version int) ([]byte, error)

	// Versions lists the stored versions for filename in ascending order.
	Versions(ctx context.Context, appName, userID, sessionID, filename string) ([]int, error)

	// List returns the artifact filenames stored for the session.
	List(ctx context.Context, appName, userID, sessionID string) ([]string, error)

	// Delete removes all versions of filename.
	Delete(ctx context.Context, appName, userID, sessionID, filename string) error
}
