// Package sheetgen renders bubble sheets for a GridConfig.
//
// Render produces the printable blank template (anchors, header, subject
// headers, question numbers, empty bubbles, the SET label and an optional QR
// sheet id) and can fill bubbles the way a student would. Place and Rotate
// put a rendered sheet into a larger photo-like frame, which is how the
// evaluation tests build their inputs.
package sheetgen
