// Package artifact provides ArtifactStore implementations. Artifacts are
// versioned binary blobs scoped to (appName, userID, sessionID); every Save
// of a filename produces a new version and Load with a negative version
// returns the latest.
package artifact
