// Package mediatypes provides shared type definitions and utilities for the
// output kinds and content types handled by media-grabber.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # Output Kinds
//
// A request names one of four output kinds, either canonically or by alias:
//
//	mediatypes.KindAudio // "audio", "mp3"
//	mediatypes.KindVideo // "video", "mp4"
//	mediatypes.KindClip  // "clip", "gif"
//	mediatypes.KindFrame // "frame", "png", "screenshot"
//
// Use ParseOutputKind to resolve user input:
//
//	kind, ok := mediatypes.ParseOutputKind(r.URL.Query().Get("kind"))
//	if !ok {
//	    // reject
//	}
//
// # MIME Types and Filenames
//
// GetExtension and GetMimeType convert between a rendition's MIME type and the
// extension used in the suggested filename. Filename combines a sanitised title
// with that extension:
//
//	name := mediatypes.Filename(meta.Title, mediatypes.GetExtension(r.MimeType))
package mediatypes
