// Package repair invokes an external command to regenerate missing or
// unreadable media before labeling. The command receives the affected
// item IDs on stdin, one per line, and is expected to rewrite whatever
// files it can; the preflight gate rechecks media state afterwards.
package repair
