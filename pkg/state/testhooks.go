package state

// SetRenameForTests overrides the rename step of atomic writes during tests.
func SetRenameForTests(fn func(oldpath, newpath string) error) func() {
	previous := renameFile
	renameFile = fn
	return func() {
		renameFile = previous
	}
}
