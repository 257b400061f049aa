// Package producer runs widget output producers and pumps their lines into
// a capture sink.
//
// A Producer emits text lines until it finishes or its context is
// cancelled. Command is the subprocess producer used by command widgets.
// A Session runs one pump per widget; a sink failure stops the whole
// session, while a failing producer only ends its own widget's capture.
package producer
