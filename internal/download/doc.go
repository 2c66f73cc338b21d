// Package download turns encoded recordings into saved files, either on
// the local filesystem or as HTTP attachments.
package download
