package storage

// CorruptFile - Custom error to inform that file content is not a valid hash db
type CorruptFile struct {
	msg string
}

// Error - Used to notify that the file is corrupt
func (E CorruptFile) Error() string {
	if E.msg == "" {
		return "corrupt hash db file"
	}
	return E.msg
}

// Is - Matches any CorruptFile regardless of message
func (E CorruptFile) Is(target error) bool {
	_, ok := target.(CorruptFile)
	return ok
}

// FileLocked - Custom error to inform that the file lock is held by someone else
type FileLocked struct {
	msg string
}

// Error - Used to notify that the file lock could not be taken without waiting
func (E FileLocked) Error() string {
	if E.msg == "" {
		return "file is locked"
	}
	return E.msg
}

// Is - Matches any FileLocked regardless of message
func (E FileLocked) Is(target error) bool {
	_, ok := target.(FileLocked)
	return ok
}

// OutOfSpace - Custom error to inform that the file can't grow any further
type OutOfSpace struct {
	msg string
}

// Error - Used to notify that the file can't grow
func (E OutOfSpace) Error() string {
	if E.msg == "" {
		return "out of space"
	}
	return E.msg
}

// Is - Matches any OutOfSpace regardless of message
func (E OutOfSpace) Is(target error) bool {
	_, ok := target.(OutOfSpace)
	return ok
}

// ReadOnly - Custom error to inform that a write was attempted on a file opened for reading
type ReadOnly struct {
	msg string
}

// Error - Used to notify that the file is read only
func (E ReadOnly) Error() string {
	if E.msg == "" {
		return "file opened read only"
	}
	return E.msg
}

// Is - Matches any ReadOnly regardless of message
func (E ReadOnly) Is(target error) bool {
	_, ok := target.(ReadOnly)
	return ok
}
