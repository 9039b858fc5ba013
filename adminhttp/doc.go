// Package adminhttp exposes a hotconfig Store over HTTP for administrative
// tools: read the active configuration, apply partial section updates, list
// backups, roll back and fetch the OpenAPI description of the schema.
package adminhttp
