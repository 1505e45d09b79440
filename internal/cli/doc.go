// Package cli holds the pieces shared by the mediax command line tools:
// logrus setup and the HTTP status server exposing metrics and the known
// streams.
package cli
