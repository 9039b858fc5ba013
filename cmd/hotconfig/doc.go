// Command hotconfig inspects and edits a configuration file through the same
// validation, backup and rollback path the running service uses, and can
// serve the administrative HTTP surface with the file watcher attached.
package main
