package sync

import "fmt"

// WriteTarget names the side a resolution write lands on.
type WriteTarget string

const (
	WriteRemote WriteTarget = "remote"
	WriteCache  WriteTarget = "cache"
)

// ResolutionWrite is one write the engine must apply to resolve a conflict.
type ResolutionWrite struct {
	Target  WriteTarget
	Path    string
	Content string
}

// Suffixes appended by the createBoth resolution. The bare suffix lands
// after the extension ("note.md_local"); kept for compatibility with
// existing clients even though it breaks extension-based file association.
const (
	localCopySuffix  = "_local"
	remoteCopySuffix = "_remote"
)

const mergeSeparator = "\n\n--- remote version ---\n\n"

// ResolutionWrites maps (conflict, resolution) to the writes that settle it.
// It is a pure function so resolution policy stays testable without a live
// store.
func ResolutionWrites(c *FileConflict, resolution ConflictResolution) ([]ResolutionWrite, error) {
	switch resolution {
	case ResolutionKeepLocal:
		return []ResolutionWrite{
			{Target: WriteRemote, Path: c.FilePath, Content: c.LocalContent},
		}, nil

	case ResolutionKeepRemote:
		return []ResolutionWrite{
			{Target: WriteCache, Path: c.FilePath, Content: c.RemoteContent},
		}, nil

	case ResolutionMerge:
		merged := c.LocalContent + mergeSeparator + c.RemoteContent
		return []ResolutionWrite{
			{Target: WriteCache, Path: c.FilePath, Content: merged},
			{Target: WriteRemote, Path: c.FilePath, Content: merged},
		}, nil

	case ResolutionCreateBoth:
		return []ResolutionWrite{
			{Target: WriteCache, Path: c.FilePath + localCopySuffix, Content: c.LocalContent},
			{Target: WriteRemote, Path: c.FilePath + localCopySuffix, Content: c.LocalContent},
			{Target: WriteCache, Path: c.FilePath + remoteCopySuffix, Content: c.RemoteContent},
			{Target: WriteRemote, Path: c.FilePath + remoteCopySuffix, Content: c.RemoteContent},
		}, nil

	case ResolutionSkip:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown conflict resolution %q", resolution)
	}
}
