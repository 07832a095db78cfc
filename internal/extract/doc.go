// Package extract derives searchable facts from the free text of a
// web-bugs issue: the hostnames it mentions, the URL reported in the
// issue template, and inline metadata markers left by the reporting tool.
//
// Everything here is pure and safe for concurrent use.
package extract
