// Package media holds the data model of a download: resolved metadata and its
// renditions, quality-class selection, transform specifications and the
// temporary artifacts a transform leaves behind. It also post-processes
// captured stills.
package media
